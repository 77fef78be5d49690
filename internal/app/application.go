package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/FeederNet/oracle_layer/internal/app/chain"
	"github.com/FeederNet/oracle_layer/internal/app/config"
	"github.com/FeederNet/oracle_layer/internal/app/guard"
	challengesvc "github.com/FeederNet/oracle_layer/internal/app/services/challenge"
	disputesvc "github.com/FeederNet/oracle_layer/internal/app/services/dispute"
	oraclesvc "github.com/FeederNet/oracle_layer/internal/app/services/oracles"
	registrysvc "github.com/FeederNet/oracle_layer/internal/app/services/registry"
	reputationsvc "github.com/FeederNet/oracle_layer/internal/app/services/reputation"
	stakesvc "github.com/FeederNet/oracle_layer/internal/app/services/stake"
	"github.com/FeederNet/oracle_layer/internal/app/storage"
	"github.com/FeederNet/oracle_layer/internal/app/storage/memory"
	"github.com/FeederNet/oracle_layer/internal/app/system"
	"github.com/FeederNet/oracle_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to a
// shared in-memory implementation.
type Stores struct {
	Feeders    storage.FeederStore
	Oracles    storage.OracleStore
	Admissions storage.AdmissionStore
	Rounds     storage.RoundStore
	Treasury   storage.TreasuryStore
}

// Deps carries the external collaborators. Nil fields get local defaults:
// an in-process token bank and the system clock.
type Deps struct {
	Config *config.Config
	Params config.Params
	Token  chain.TokenClient
	Clock  chain.Clock
}

// Application ties the domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Breaker *system.Breaker

	Stake      *stakesvc.Service
	Reputation *reputationsvc.Service
	Registry   *registrysvc.Service
	Challenge  *challengesvc.Service
	Dispute    *disputesvc.Service
	Oracles    *oraclesvc.Service
}

// New builds a fully initialised application.
func New(stores Stores, deps Deps, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if deps.Config == nil {
		deps.Config = &config.Config{VaultAddress: "oracle-vault", TreasuryAddress: "oracle-treasury"}
	}
	if deps.Params == (config.Params{}) {
		deps.Params = config.DefaultParams()
	}
	if deps.Clock == nil {
		deps.Clock = chain.SystemClock{}
	}

	mem := memory.New()
	if stores.Feeders == nil {
		stores.Feeders = mem
	}
	if stores.Oracles == nil {
		stores.Oracles = mem
	}
	if stores.Admissions == nil {
		stores.Admissions = mem
	}
	if stores.Rounds == nil {
		stores.Rounds = mem
	}
	if stores.Treasury == nil {
		stores.Treasury = mem
	}

	if deps.Token == nil {
		if deps.Config.TokenContractURL != "" {
			httpClient := &http.Client{Timeout: 10 * time.Second}
			token, err := chain.NewHTTPTokenClient(httpClient, deps.Config.TokenContractURL, deps.Config.TokenContractKey, log)
			if err != nil {
				return nil, fmt.Errorf("configure token client: %w", err)
			}
			deps.Token = token
		} else {
			log.Warn("TOKEN_CONTRACT_URL not set; using in-process token bank")
			deps.Token = chain.NewMemoryBank(deps.Config.VaultAddress)
		}
	}

	manager := system.NewManager()
	breaker := system.NewBreaker()
	g := guard.New()
	operators := deps.Config.OperatorSet()

	stakeService := stakesvc.New(stores.Feeders, deps.Token, g, breaker, deps.Clock, deps.Params, deps.Config.VaultAddress, log)
	reputationService := reputationsvc.New(stores.Feeders, stores.Oracles, deps.Clock, deps.Params, log)
	registryService := registrysvc.New(stores.Feeders, stores.Oracles, stores.Admissions, reputationService, deps.Token, g, breaker, deps.Clock, deps.Params, deps.Config.TreasuryAddress, log)
	challengeService := challengesvc.New(stores.Oracles, stores.Rounds, stores.Feeders, reputationService, breaker, deps.Clock, deps.Params, log)
	disputeService := disputesvc.New(stores.Rounds, stores.Oracles, stores.Feeders, stores.Treasury, deps.Token, g, breaker, deps.Clock, deps.Params, log)
	oraclesService := oraclesvc.New(stores.Oracles, stores.Treasury, deps.Token, g, breaker, deps.Clock, deps.Params, operators, deps.Config.TreasuryAddress, log)

	for _, name := range []string{"stake", "reputation", "challenge", "dispute", "oracles"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	sweeper := registrysvc.NewSweeper(registryService, deps.Params.SweepSchedule, log)
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register %s: %w", sweeper.Name(), err)
	}

	return &Application{
		manager:    manager,
		log:        log,
		Breaker:    breaker,
		Stake:      stakeService,
		Reputation: reputationService,
		Registry:   registryService,
		Challenge:  challengeService,
		Dispute:    disputeService,
		Oracles:    oraclesService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
