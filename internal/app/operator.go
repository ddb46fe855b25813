package app

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/assistly/server/internal/module/account"
	"github.com/assistly/server/internal/module/billing/provider"
	"github.com/assistly/server/internal/module/reset"
	"github.com/assistly/server/internal/module/subscription"
	"github.com/assistly/server/internal/shared/config"
)

// Operator holds the components used by the operator CLI.
type Operator struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *gorm.DB
	Accounts  account.Repository
	Lifecycle *subscription.Lifecycle
	Gateway   provider.Gateway
	Reset     *reset.Runner
}
