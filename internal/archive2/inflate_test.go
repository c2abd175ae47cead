package archive2

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInflate(t *testing.T) {
	gz, err := os.ReadFile(filepath.Join("testdata", "kinx_legacy_uncompressed.ar2v.gz"))
	require.NoError(t, err)
	require.True(t, IsGzip(gz))

	out, err := Inflate(gz)
	require.NoError(t, err)
	assert.Equal(t, "AR2V0001", string(out[:8]))

	plain := []byte("AR2V0006.001")
	same, err := Inflate(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, same)

	_, err = Inflate(append([]byte{0x1f, 0x8b}, "not gzip"...))
	assert.Error(t, err)
}
