package authcode_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docketlabs/docket-idp/authcode"
	"github.com/docketlabs/docket-idp/oauth2"
)

const (
	testClientID    = "test-client-1"
	testSubject     = "user-1"
	testRedirectURI = "http://localhost:3000/callback"
)

func testCode(expiresAt time.Time) *authcode.Code {
	return &authcode.Code{
		ClientID:            testClientID,
		Subject:             testSubject,
		Scopes:              []string{"openid", "profile"},
		RedirectURI:         testRedirectURI,
		CodeChallenge:       "challenge",
		CodeChallengeMethod: oauth2.CodeMethodTypeS256,
		ExpiresAt:           expiresAt,
	}
}

func TestConsumeReturnsSavedCode(t *testing.T) {
	store := authcode.NewInMemoryStore()

	code, err := authcode.Generate()
	require.NoError(t, err)
	require.NoError(t, store.Save(code, testCode(time.Now().Add(time.Minute))))

	data, err := store.Consume(code)
	require.NoError(t, err)
	require.Equal(t, testClientID, data.ClientID)
	require.Equal(t, testSubject, data.Subject)
	require.Equal(t, testRedirectURI, data.RedirectURI)
}

func TestConsumeIsSingleUse(t *testing.T) {
	store := authcode.NewInMemoryStore()

	code, err := authcode.Generate()
	require.NoError(t, err)
	require.NoError(t, store.Save(code, testCode(time.Now().Add(time.Minute))))

	_, err = store.Consume(code)
	require.NoError(t, err)

	_, err = store.Consume(code)
	require.ErrorIs(t, err, authcode.ErrCodeNotFound)
}

func TestConsumeUnknownCode(t *testing.T) {
	store := authcode.NewInMemoryStore()

	_, err := store.Consume("never-issued")
	require.ErrorIs(t, err, authcode.ErrCodeNotFound)
}

func TestConsumeExpiredCode(t *testing.T) {
	now := time.Now()
	store := authcode.NewInMemoryStore(authcode.WithNowFunc(func() time.Time { return now }))

	code, err := authcode.Generate()
	require.NoError(t, err)
	require.NoError(t, store.Save(code, testCode(now.Add(time.Minute))))

	now = now.Add(2 * time.Minute)
	_, err = store.Consume(code)
	require.ErrorIs(t, err, authcode.ErrCodeExpired)

	// Expired consumption still burns the code
	_, err = store.Consume(code)
	require.ErrorIs(t, err, authcode.ErrCodeNotFound)
}

func TestConcurrentConsumeYieldsOneSuccess(t *testing.T) {
	store := authcode.NewInMemoryStore()

	code, err := authcode.Generate()
	require.NoError(t, err)
	require.NoError(t, store.Save(code, testCode(time.Now().Add(time.Minute))))

	const goroutines = 32
	var wg sync.WaitGroup
	results := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Consume(code)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, authcode.ErrCodeNotFound)
		}
	}
	require.Equal(t, 1, successes)
}

func TestCleanupRemovesExpiredCodes(t *testing.T) {
	now := time.Now()
	store := authcode.NewInMemoryStore(authcode.WithNowFunc(func() time.Time { return now }))

	expired, err := authcode.Generate()
	require.NoError(t, err)
	require.NoError(t, store.Save(expired, testCode(now.Add(-time.Minute))))

	live, err := authcode.Generate()
	require.NoError(t, err)
	require.NoError(t, store.Save(live, testCode(now.Add(time.Minute))))

	store.Cleanup()

	_, err = store.Consume(expired)
	require.ErrorIs(t, err, authcode.ErrCodeNotFound)

	_, err = store.Consume(live)
	require.NoError(t, err)
}
