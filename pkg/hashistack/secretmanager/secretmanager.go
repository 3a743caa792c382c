package secretmanager

import (
	"os"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// ProvideVault returns a nil client when VAULT_ADDR is unset so config falls
// back to plain environment secrets.
func ProvideVault() (*vault.Client, error) {
	if _, ok := os.LookupEnv("VAULT_ADDR"); !ok {
		zap.L().Info("VAULT_ADDR not set, skipping vault secrets")
		return nil, nil
	}

	client, err := vault.New(
		vault.WithEnvironment(),
	)
	if err != nil {
		return nil, err
	}

	return client, nil
}
