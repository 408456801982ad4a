package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportStoreRoundTrip(t *testing.T) {
	store, err := NewExportStore(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("timetable_period-1.csv", []byte("group,course\n"))
	require.NoError(t, err)
	assert.Equal(t, "timetable_period-1.csv", name)

	file, err := store.Open(name)
	require.NoError(t, err)
	info, err := file.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(13), info.Size())
	require.NoError(t, file.Close())

	require.NoError(t, store.Delete(name))
	require.NoError(t, store.Delete(name), "deleting twice is harmless")
	_, err = store.Open(name)
	assert.Error(t, err)
}

func TestExportStoreRejectsEscapingNames(t *testing.T) {
	store, err := NewExportStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../secret.csv", "nested/file.csv", "/etc/passwd", ".hidden"} {
		_, err := store.Save(name, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidPath, name)
		_, err = store.Open(name)
		assert.ErrorIs(t, err, ErrInvalidPath, name)
	}
}

func TestExportStoreCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	store, err := NewExportStore(dir)
	require.NoError(t, err)

	_, err = store.Save("old.pdf", []byte("old"))
	require.NoError(t, err)
	_, err = store.Save("fresh.pdf", []byte("fresh"))
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.pdf"), past, past))

	removed, err := store.CleanupOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old.pdf"}, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh.pdf", entries[0].Name())
}

func TestDownloadSignerRoundTrip(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("export-1", "timetable_period-1.xlsx")
	require.NoError(t, err)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "export-1", claims.ExportID)
	assert.Equal(t, "timetable_period-1.xlsx", claims.File)
	assert.WithinDuration(t, expiresAt, claims.ExpiresAt, time.Second)
}

func TestDownloadSignerRejectsBadTokens(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)
	token, _, err := signer.Sign("export-1", "file.ics")
	require.NoError(t, err)

	_, err = NewDownloadSigner("other", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidDownloadToken)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	_, err = signer.Verify(parts[0] + "." + parts[1] + ".tampered")
	assert.ErrorIs(t, err, ErrInvalidDownloadToken)

	_, err = signer.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidDownloadToken)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidDownloadToken)

	_, _, err = NewDownloadSigner("", time.Hour).Sign("export-1", "file.ics")
	assert.Error(t, err)
}
