//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"

	"github.com/assistly/server/internal/shared/config"
)

// InitializeApp creates the server using Wire.
func InitializeApp(cfg *config.Config) (*App, func(), error) {
	wire.Build(AppSet)
	return nil, nil, nil
}

// InitializeOperator creates the operator components using Wire.
func InitializeOperator(cfg *config.Config) (*Operator, func(), error) {
	wire.Build(
		OperatorSet,
		wire.Struct(new(Operator), "*"),
	)
	return nil, nil, nil
}
