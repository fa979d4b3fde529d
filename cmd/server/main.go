package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/docketlabs/docket-idp/auth"
	"github.com/docketlabs/docket-idp/authcode"
	"github.com/docketlabs/docket-idp/clients"
	"github.com/docketlabs/docket-idp/interaction"
	"github.com/docketlabs/docket-idp/internal/config"
	"github.com/docketlabs/docket-idp/oauth2"
	"github.com/docketlabs/docket-idp/scopes"
	"github.com/docketlabs/docket-idp/server"
	"github.com/docketlabs/docket-idp/token"
	"github.com/docketlabs/docket-idp/token/keys"
	"github.com/docketlabs/docket-idp/users"
)

const codeCleanupInterval = time.Minute

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load(os.Getenv("CONFIG_DIR"))
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}
	configureLogging(cfg)
	displayAppname(cfg.GetAppName())

	handler, interactions, stopCleanup, err := buildServer(cfg)
	if err != nil {
		return fmt.Errorf("buildServer: %w", err)
	}
	defer func() {
		stopCleanup()
		_ = interactions.Close()
	}()

	httpServer := &http.Server{Addr: cfg.GetPort(), Handler: handler}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func buildServer(cfg config.Config) (*server.Server, interaction.Repo, func(), error) {
	keyPair, err := signingKeyPair(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("signingKeyPair: %w", err)
	}
	signer := keys.NewKeyPairSigner(keyPair)

	scopeRegistry := scopes.NewRegistry(
		[]scopes.ApiScope{{Name: server.DocketManagerScope, DisplayName: "Docket Manager API"}},
		scopes.DefaultIdentityResources(),
	)

	clientRegistry, err := buildClientRegistry(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("buildClientRegistry: %w", err)
	}

	userRepo := users.NewInMemoryRepo()
	if err := users.SeedTestUsers(userRepo); err != nil {
		return nil, nil, nil, fmt.Errorf("users.SeedTestUsers: %w", err)
	}

	issuer, err := token.New(signer, scopeRegistry, cfg.GetIssuerURL(), server.DocketManagerScope,
		token.WithTokenExpiry(cfg.GetAccessTokenTTL(), cfg.GetIDTokenTTL()))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("token.New: %w", err)
	}

	validator := token.NewValidator(signer.PublicKey(), cfg.GetIssuerURL())

	codeStore := authcode.NewInMemoryStore()
	pendingRepo := auth.NewInMemoryPendingRepo(auth.WithPendingTTL(cfg.GetInteractionTTL()))
	authService, err := auth.NewAuthorizationService(
		auth.Repos{
			Users:   userRepo,
			Pending: pendingRepo,
			Codes:   codeStore,
			Refresh: auth.NewInMemoryRefreshRepo(),
		},
		clientRegistry,
		scopeRegistry,
		issuer,
		auth.WithCodeTTL(cfg.GetCodeTTL()),
		auth.WithRefreshTTL(cfg.GetRefreshTokenTTL()),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("auth.NewAuthorizationService: %w", err)
	}

	interactions, err := interaction.NewBuntStore(cfg.GetInteractionTTL())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("interaction.NewBuntStore: %w", err)
	}

	srv, err := server.New(cfg, authService, issuer, validator, interactions)
	if err != nil {
		_ = interactions.Close()
		return nil, nil, nil, fmt.Errorf("server.New: %w", err)
	}

	stopCleanup := startCleanup(codeStore, pendingRepo)

	return srv, interactions, stopCleanup, nil
}

// signingKeyPair loads the pinned signing key when the deployment configures
// one and generates a fresh key otherwise.
func signingKeyPair(cfg config.Config) (*keys.KeyPair, error) {
	keyID := cfg.GetSigningKeyID()
	if keyID == "" {
		keyID = uuid.New().String()
	}

	if pemData := cfg.GetSigningKeyPEM(); pemData != "" {
		keyPair, err := keys.LoadKeyPairFromPEM(keyID, pemData)
		if err != nil {
			return nil, fmt.Errorf("keys.LoadKeyPairFromPEM: %w", err)
		}
		return keyPair, nil
	}

	keyPair, err := keys.GenerateRSAKeyPair(keyID, 2048)
	if err != nil {
		return nil, fmt.Errorf("keys.GenerateRSAKeyPair: %w", err)
	}
	if !cfg.IsProduction() {
		if pub, err := keyPair.ExportPublicKeyPEM(); err == nil {
			zlog.Debug().Str("kid", keyPair.KeyID).Msg("generated signing key\n" + pub)
		}
	}
	return keyPair, nil
}

func buildClientRegistry(cfg config.Config) (*clients.Registry, error) {
	secretHash, err := clients.HashSecret(cfg.GetBackOfficeClientSecret())
	if err != nil {
		return nil, fmt.Errorf("clients.HashSecret: %w", err)
	}

	backendURL := cfg.GetBackOfficeBackendURL()
	docketManager := &clients.Client{
		ID:          cfg.GetBackOfficeClientID(),
		Description: "Docket Manager back office",
		SecretHash:  secretHash,
		GrantTypes: []oauth2.GrantType{
			oauth2.AuthorizationCodeGrant,
			oauth2.ClientCredentialsGrant,
			oauth2.RefreshTokenGrant,
		},
		Scopes:                  []string{"openid", "profile", "email", "roles", server.DocketManagerScope},
		RedirectURIs:            []string{backendURL + "signin-docket-manager"},
		PostLogoutRedirectURIs:  []string{backendURL + "signout-docket-manager"},
		RequirePKCE:             true,
		RequireConsent:          false,
		AllowOfflineAccess:      true,
		AlwaysIncludeUserClaims: true,
	}

	return clients.NewRegistry([]*clients.Client{docketManager}), nil
}

func startCleanup(codes *authcode.InMemoryStore, pending *auth.InMemoryPendingRepo) func() {
	ticker := time.NewTicker(codeCleanupInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				codes.Cleanup()
				pending.Cleanup()
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func configureLogging(cfg config.Config) {
	if cfg.IsProduction() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
