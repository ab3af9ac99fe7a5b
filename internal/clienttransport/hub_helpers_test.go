package clienttransport

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateOrigin_NoOriginHeaderAllowed(t *testing.T) {
	req := httptest.NewRequest("GET", "http://example.com/ws", nil)
	assert.NoError(t, validateOrigin(req, []string{"https://trusted.com"}))
}

func TestValidateOrigin_AllowedMatch(t *testing.T) {
	req := httptest.NewRequest("GET", "http://example.com/ws", nil)
	req.Header.Set("Origin", "https://trusted.com")
	assert.NoError(t, validateOrigin(req, []string{"https://trusted.com", "http://localhost:3000"}))
}

func TestValidateOrigin_RejectsUnknownOrigin(t *testing.T) {
	req := httptest.NewRequest("GET", "http://example.com/ws", nil)
	req.Header.Set("Origin", "https://evil.example")
	assert.Error(t, validateOrigin(req, []string{"https://trusted.com"}))
}

func TestValidateOrigin_SchemeMustMatch(t *testing.T) {
	req := httptest.NewRequest("GET", "http://example.com/ws", nil)
	req.Header.Set("Origin", "http://trusted.com")
	assert.Error(t, validateOrigin(req, []string{"https://trusted.com"}))
}
