package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScanFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		ok      bool
		variant string
		gzip    bool
		path    string
	}{
		{"modern", "KTLX20240315_120021_V06", true, "V06", false, "2024/03/15/KTLX/KTLX20240315_120021_V06"},
		{"v03 gz", "KINX20090101_000512_V03.gz", true, "V03", true, "2009/01/01/KINX/KINX20090101_000512_V03.gz"},
		{"legacy gz", "KTLX20050510_230044.gz", true, "", true, "2005/05/10/KTLX/KTLX20050510_230044.gz"},
		{"full key", "2024/03/15/KTLX/KTLX20240315_120021_V06", true, "V06", false, "2024/03/15/KTLX/KTLX20240315_120021_V06"},
		{"metadata", "KTLX20240315_120021_V06_MDM", false, "", false, ""},
		{"garbage", "index.html", false, "", false, ""},
		{"bad date", "KTLX20241345_120021_V06", false, "", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, ok := ParseScanFile(tt.file)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.variant, meta.Variant)
			assert.Equal(t, tt.gzip, meta.Gzip)
			assert.Equal(t, tt.path, meta.Path)
			assert.Equal(t, time.UTC, meta.Time.Location())
		})
	}
}

func TestCacheKey_String(t *testing.T) {
	ts := time.Date(2024, 3, 15, 12, 0, 21, 0, time.UTC)

	assert.Equal(t, "KTLX/20240315/120021/V06", CacheKey{Station: "KTLX", Time: ts, Variant: "V06"}.String())
	assert.Equal(t, "KTLX/20240315/120021/-", CacheKey{Station: "KTLX", Time: ts}.String())

	// The same instant in another zone renders identically.
	cst := time.FixedZone("CST", -6*3600)
	assert.Equal(t,
		CacheKey{Station: "KTLX", Time: ts, Variant: "V06"}.String(),
		CacheKey{Station: "KTLX", Time: ts.In(cst), Variant: "V06"}.String())

	// Different stations or timestamps never collide.
	assert.NotEqual(t,
		CacheKey{Station: "KTLX", Time: ts}.String(),
		CacheKey{Station: "KINX", Time: ts}.String())
	assert.NotEqual(t,
		CacheKey{Station: "KTLX", Time: ts}.String(),
		CacheKey{Station: "KTLX", Time: ts.Add(time.Second)}.String())
}

func TestScanMeta_Key(t *testing.T) {
	meta, ok := ParseScanFile("KTLX20240315_120021_V06")
	require.True(t, ok)

	assert.Equal(t, "KTLX/20240315/120021/V06", meta.Key().String())
	assert.Equal(t, "KTLX20240315_120021_V06", meta.FileName())
	assert.Equal(t, "2024/03/15/KTLX/", ScanPrefix("KTLX", meta.Time))
}
