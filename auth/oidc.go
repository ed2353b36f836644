package auth

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pawsly/pawsly-chat/config"
	"github.com/pawsly/pawsly-chat/globals"
)

// Authenticate verifies a given OIDC ID-Token using the configured OIDC provider.
// It returns the user's id if verification was successful (or an empty string if no provider was configured).
// Session issuance itself happens outside this service, this is only how the
// authenticated principal's id reaches the moderation core.
func Authenticate(ctx context.Context, idToken, oidcProvider string, cfg *config.Config) (string, error) {
	userId := ""
	if idToken == "" || len(cfg.OIDCConfigs) == 0 {
		return "", nil
	}
	var oidcConf *config.OIDCConfig
	for i := range cfg.OIDCConfigs {
		if cfg.OIDCConfigs[i].Name == oidcProvider {
			oidcConf = &cfg.OIDCConfigs[i]
			break
		}
	}
	if oidcConf == nil {
		globals.AppLogger.Debug("no oidc config found for provider", "provider", oidcProvider)
		return "", nil
	}
	provider, err := oidc.NewProvider(ctx, oidcConf.ProviderUrl)
	if err != nil {
		return "", err
	}
	conf := oidc.Config{}
	if oidcConf.ClientId == "" {
		conf.SkipClientIDCheck = true
	} else {
		conf.ClientID = oidcConf.ClientId
	}
	verifier := provider.Verifier(&conf)
	verifiedIdToken, err := verifier.Verify(ctx, idToken)
	if err != nil {
		globals.AppLogger.Error("id token verification failed", "error", err)
		return "", err
	}

	claims := struct {
		Email string `json:"email"`
	}{}
	err = verifiedIdToken.Claims(&claims)
	if err != nil {
		return "", err
	}
	if claims.Email != "" {
		userId = claims.Email
	}
	return userId, nil
}
