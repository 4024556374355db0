//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"lexdraft-bff/internal/config"
)

// InitializeApp 初始化 BFF 应用
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		BackendSet,
		RedisSet,
		MessagingSet,
		ApplicationSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
