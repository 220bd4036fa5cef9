package cloudinary

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBuildPublicIDKeepsExtension(t *testing.T) {
	id := buildPublicID("Final Report (v2).PDF")
	require.Regexp(t, `^final-report-v2-[0-9a-f]{8}\.pdf$`, id)
	require.NotEqual(t, id, buildPublicID("Final Report (v2).PDF"))

	fallback := buildPublicID("../???.zip")
	require.True(t, strings.HasPrefix(fallback, "document-"), fallback)
	require.True(t, strings.HasSuffix(fallback, ".zip"), fallback)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo", APISecret: " "}, zerolog.Nop())
	require.EqualError(t, err, "cloudinary: missing api key, api secret")

	svc, err := New(Config{CloudName: "demo", APIKey: "key", APISecret: "secret", Folder: "/fyp/"}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "fyp", svc.folder)
}
