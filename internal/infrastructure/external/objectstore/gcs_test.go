package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicURL(t *testing.T) {
	got := publicURL("https://storage.googleapis.com", "samples", "handwriting/c1/20260101-a b.png")
	assert.Equal(t, "https://storage.googleapis.com/samples/handwriting/c1/20260101-a%20b.png", got)
}

func TestConfig_EmulatorSkipsCredentials(t *testing.T) {
	opts := Config{Bucket: "b", EmulatorEndpoint: "http://localhost:4443/", CredentialsFile: "/nope.json"}.clientOptions()
	assert.Len(t, opts, 2)
}

func TestMemoryStore_Upload(t *testing.T) {
	s := NewMemoryStore("")
	url, err := s.Upload(context.Background(), "handwriting/c1/x.png", "image/png", []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, "memory://objects/handwriting/c1/x.png", url)

	b, ok := s.Object("handwriting/c1/x.png")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, b)
}
