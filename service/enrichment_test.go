package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"paggo-backend/extraction"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedFile(t *testing.T, env *testEnv, owner uuid.UUID) EnrichRequest {
	t.Helper()
	file := upload(t, env, owner, "report.pdf", []byte("0123456789")).File
	env.pool.Wait()
	return enrichRequestFor(file)
}

func extractedText(t *testing.T, env *testEnv, owner, id uuid.UUID) *string {
	t.Helper()
	got, err := env.service.GetFile(context.Background(), GetFileRequest{OwnerID: owner, FileID: id})
	require.NoError(t, err)
	return got.File.ExtractedText
}

func TestEnrich_FailuresLeaveTextNull(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, []byte, string) (string, error)
	}{
		{"adapter returns no text", func(context.Context, []byte, string) (string, error) {
			return "", extraction.ErrNoText
		}},
		{"adapter returns blank text", returnText("   ")},
		{"adapter errors", func(context.Context, []byte, string) (string, error) {
			return "", errors.New("quota exceeded")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.extractor.fn = tt.fn

			// The upload caller never sees the failure
			result, err := env.service.SubmitUpload(context.Background(), SubmitUploadRequest{
				OwnerID:      ownerU1,
				Data:         strings.NewReader("0123456789"),
				OriginalName: "report.pdf",
				Size:         10,
			})
			require.NoError(t, err)
			env.pool.Wait()

			assert.Equal(t, 1, env.extractor.callCount())
			assert.Nil(t, extractedText(t, env, ownerU1, result.File.ID))

			published := env.publisher.published()
			require.Len(t, published, 1)
			assert.False(t, published[0].Succeeded)
			assert.NotEmpty(t, published[0].Reason)

			// Direct invocation reports the failure
			err = env.service.Enrich(context.Background(), enrichRequestFor(result.File))
			assert.ErrorIs(t, err, ErrEnrichment)
		})
	}
}

func TestEnrich_RerunOverwritesTextWithoutDuplicates(t *testing.T) {
	env := newTestEnv(t)
	req := storedFile(t, env, ownerU1)
	require.Equal(t, "Hello\nWorld", *extractedText(t, env, ownerU1, req.FileID))

	env.extractor.fn = returnText("Hello\nAgain")
	require.NoError(t, env.service.Enrich(context.Background(), req))
	require.NoError(t, env.service.Enrich(context.Background(), req))

	assert.Equal(t, 1, env.files.count())
	assert.Equal(t, 1, env.storage.objectCount(t))
	assert.Equal(t, 1, env.storage.puts)
	assert.Equal(t, "Hello\nAgain", *extractedText(t, env, ownerU1, req.FileID))
}

func TestEnrich_FailedRerunKeepsPreviousText(t *testing.T) {
	env := newTestEnv(t)
	req := storedFile(t, env, ownerU1)

	env.extractor.fn = returnText("")
	assert.ErrorIs(t, env.service.Enrich(context.Background(), req), ErrEnrichment)
	assert.Equal(t, "Hello\nWorld", *extractedText(t, env, ownerU1, req.FileID))
}

func TestEnrich_DeletedRecordIsNoop(t *testing.T) {
	env := newTestEnv(t)

	release := make(chan struct{})
	started := make(chan struct{})
	env.extractor.fn = func(ctx context.Context, data []byte, mimeType string) (string, error) {
		close(started)
		<-release
		return "late text", nil
	}

	file := upload(t, env, ownerU1, "report.pdf", []byte("0123456789")).File
	<-started

	_, err := env.service.DeleteFile(context.Background(), DeleteFileRequest{OwnerID: ownerU1, FileID: file.ID})
	require.NoError(t, err)

	close(release)
	env.pool.Wait()

	assert.Equal(t, 0, env.files.count())
	assert.Empty(t, env.publisher.published())
}

func TestEnrich_DirectCallOnDeletedRecord(t *testing.T) {
	env := newTestEnv(t)
	req := storedFile(t, env, ownerU1)

	// Object still present but the record is gone
	env.files.mu.Lock()
	delete(env.files.files, req.FileID)
	env.files.mu.Unlock()

	assert.NoError(t, env.service.Enrich(context.Background(), req))
	assert.Equal(t, 0, env.files.count())
}

func TestEnrich_TimeoutIsFailure(t *testing.T) {
	env := newTestEnv(t, FileWithExtractionTimeout(500*time.Millisecond))
	env.extractor.fn = func(ctx context.Context, data []byte, mimeType string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	start := time.Now()
	result := upload(t, env, ownerU1, "slow.pdf", []byte("0123456789"))
	assert.Less(t, time.Since(start), 400*time.Millisecond)

	env.pool.Wait()
	assert.Nil(t, extractedText(t, env, ownerU1, result.File.ID))

	published := env.publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, "timeout", published[0].Reason)
}

func TestEnrich_FetchFailure(t *testing.T) {
	env := newTestEnv(t)
	req := storedFile(t, env, ownerU1)

	env.storage.getErr = errors.New("bucket unavailable")
	err := env.service.Enrich(context.Background(), req)
	assert.ErrorIs(t, err, ErrEnrichment)
	assert.Equal(t, 1, env.extractor.callCount())
}

func TestEnrich_SaveFailure(t *testing.T) {
	env := newTestEnv(t)
	env.files.updateErr = errors.New("connection reset")

	result := upload(t, env, ownerU1, "report.pdf", []byte("0123456789"))
	env.pool.Wait()
	assert.Nil(t, extractedText(t, env, ownerU1, result.File.ID))
}

func TestEnrich_IndependentFiles(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.fn = func(ctx context.Context, data []byte, mimeType string) (string, error) {
		if string(data) == "broken" {
			return "", errors.New("unreadable")
		}
		return "text of " + string(data), nil
	}

	good := upload(t, env, ownerU1, "good.pdf", []byte("good"))
	bad := upload(t, env, ownerU1, "bad.pdf", []byte("broken"))
	other := upload(t, env, ownerU2, "other.pdf", []byte("other"))
	env.pool.Wait()

	assert.Equal(t, "text of good", *extractedText(t, env, ownerU1, good.File.ID))
	assert.Nil(t, extractedText(t, env, ownerU1, bad.File.ID))
	assert.Equal(t, "text of other", *extractedText(t, env, ownerU2, other.File.ID))
}

func TestReprocessFile(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.fn = returnText("")
	req := storedFile(t, env, ownerU1)
	assert.Nil(t, extractedText(t, env, ownerU1, req.FileID))

	err := env.service.ReprocessFile(context.Background(), GetFileRequest{OwnerID: ownerU2, FileID: req.FileID})
	assert.ErrorIs(t, err, ErrNotFound)

	env.extractor.fn = returnText("second try")
	require.NoError(t, env.service.ReprocessFile(context.Background(), GetFileRequest{OwnerID: ownerU1, FileID: req.FileID}))
	env.pool.Wait()

	assert.Equal(t, "second try", *extractedText(t, env, ownerU1, req.FileID))
	assert.Equal(t, 1, env.files.count())
}
