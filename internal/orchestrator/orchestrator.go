// Package orchestrator implements the Orchestrator: the lifecycle owner
// for every account and strategy runner. It builds per-account exchange
// resources, wires each strategy's runner and retry queue, routes
// normalized WS events to the runners that own them, and drives the
// periodic position-check, health-check, and order-sync tasks.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"gridcore/internal/anchorstore"
	"gridcore/internal/config"
	"gridcore/internal/core"
	"gridcore/internal/engine"
	"gridcore/internal/execution"
	"gridcore/internal/reconcile"
	"gridcore/internal/retryqueue"
	"gridcore/internal/runner"
	"gridcore/pkg/concurrency"
)

const eventChanBuffer = 256

// WSConnector owns one account's public+private websocket connections. It
// is handed a callback to invoke with every normalized event; the
// orchestrator never parses wire frames itself. Implemented outside this
// module against the concrete exchange.
type WSConnector interface {
	Connect(ctx context.Context, onEvent func(core.EventEnvelope)) error
	Disconnect()
	Resubscribe(ctx context.Context) error
	IsHealthy() bool
}

// AccountDeps bundles the resources built for one account: its exchange
// gateway and its websocket connector.
type AccountDeps struct {
	Gateway core.IExchangeGateway
	WS      WSConnector
}

// AccountFactory constructs per-account resources. Called once per
// configured account during Start.
type AccountFactory func(accountName string, acc config.AccountConfig) (AccountDeps, error)

// accountResources is everything the orchestrator owns per account.
type accountResources struct {
	name    string
	gateway core.IExchangeGateway
	ws      WSConnector
	runners []*runner.Runner

	cancel context.CancelFunc

	wallet walletCache

	// positions is the WS-fed authoritative cache: symbol -> direction -> state.
	posMu     sync.RWMutex
	positions map[string]map[core.Direction]*core.PositionState
}

// walletCache holds one account's balance behind a single mutex, with a
// TTL and single-flight dedup for concurrent readers. A TTL <= 0
// disables the cache entirely.
type walletCache struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	cachedAt time.Time
	ttl      time.Duration
	inflight chan struct{} // non-nil while a fetch is outstanding
}

// get returns the cached balance if fresh, otherwise fetches via fetch and
// stores the result. Concurrent callers during a fetch share its result.
func (w *walletCache) get(ctx context.Context, fetch func(context.Context) (decimal.Decimal, error)) (decimal.Decimal, error) {
	w.mu.Lock()
	if w.ttl <= 0 {
		w.mu.Unlock()
		return fetch(ctx)
	}
	if time.Since(w.cachedAt) < w.ttl {
		bal := w.balance
		w.mu.Unlock()
		return bal, nil
	}
	if w.inflight != nil {
		ch := w.inflight
		w.mu.Unlock()
		<-ch
		w.mu.Lock()
		bal := w.balance
		w.mu.Unlock()
		return bal, nil
	}
	w.inflight = make(chan struct{})
	w.mu.Unlock()

	bal, err := fetch(ctx)

	w.mu.Lock()
	if err == nil {
		w.balance = bal
		w.cachedAt = time.Now()
	}
	close(w.inflight)
	w.inflight = nil
	w.mu.Unlock()
	return bal, err
}

// Dependencies bundles everything Orchestrator needs beyond the config.
type Dependencies struct {
	Logger         core.ILogger
	Notifier       core.INotifier
	AnchorStore    core.IAnchorStore
	RiskLimit      core.IRiskLimitCache
	Health         core.IHealthMonitor
	AccountFactory AccountFactory
}

// Orchestrator owns the full fleet of accounts and strategy runners.
type Orchestrator struct {
	cfg  *config.Config
	deps Dependencies

	mu            sync.RWMutex
	accounts      map[string]*accountResources
	runners       map[string]*runner.Runner    // strat_id -> runner
	queues        map[string]*retryqueue.Queue // strat_id -> retry queue
	bySymbol      map[string][]*runner.Runner
	byAccountName map[string][]*runner.Runner

	cron         *cron.Cron
	cronIDs      []cron.EntryID
	runID        string
	stopOnce     sync.Once
	runnerCtx    context.Context
	runnerCancel context.CancelFunc
	wg           sync.WaitGroup

	// eventPools gives each runner its own single-worker pool. Every
	// ticker, execution, and order-update event for a given strategy
	// funnels through that strategy's one worker, so they can never run
	// concurrently with each other, while different strategies' events
	// still process in parallel across their own workers. WS callback
	// goroutines calling routeEvent only ever submit to this pool and
	// never touch runner state directly. restPool is a separate, larger
	// pool handed to every executor, bounding concurrent REST calls
	// across the fleet; kept distinct from eventPools so a runner's
	// single worker blocking on a REST call never contends with another
	// runner's worker for the same slot.
	eventPools map[string]*concurrency.WorkerPool
	restPool   *concurrency.WorkerPool
}

// New constructs an Orchestrator for cfg. Start must be called to bring
// resources up.
func New(cfg *config.Config, deps Dependencies) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		deps:          deps,
		accounts:      make(map[string]*accountResources),
		runners:       make(map[string]*runner.Runner),
		queues:        make(map[string]*retryqueue.Queue),
		bySymbol:      make(map[string][]*runner.Runner),
		byAccountName: make(map[string][]*runner.Runner),
		cron:          cron.New(),
		runID:         uuid.NewString(),
		eventPools:    make(map[string]*concurrency.WorkerPool),
		restPool: concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:        "RESTDispatch",
			MaxWorkers:  16,
			MaxCapacity: 4096,
		}, deps.Logger),
	}
}

// Start brings up every account concurrently, builds each strategy's
// runner and retry queue, runs startup reconciliation, connects
// websockets, and schedules the periodic tasks.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.runnerCtx, o.runnerCancel = context.WithCancel(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for name, accCfg := range o.cfg.Accounts {
		name, accCfg := name, accCfg
		g.Go(func() error {
			return o.bringUpAccount(gctx, name, accCfg)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("orchestrator: account bring-up: %w", err)
	}

	if err := o.buildRunners(); err != nil {
		return fmt.Errorf("orchestrator: build runners: %w", err)
	}

	o.reconcileAllStartup(o.runnerCtx)

	if err := o.connectAll(o.runnerCtx); err != nil {
		return fmt.Errorf("orchestrator: connect websockets: %w", err)
	}

	o.scheduleTasks()
	o.cron.Start()

	for _, q := range o.queues {
		q := q
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			q.Drain(o.runnerCtx)
		}()
	}

	o.deps.Logger.Info("orchestrator started", "run_id", o.runID, "accounts", len(o.accounts), "strategies", len(o.runners))
	return nil
}

func (o *Orchestrator) bringUpAccount(ctx context.Context, name string, accCfg config.AccountConfig) error {
	if o.deps.AccountFactory == nil {
		return fmt.Errorf("orchestrator: no account factory configured")
	}
	deps, err := o.deps.AccountFactory(name, accCfg)
	if err != nil {
		return fmt.Errorf("bring up account %s: %w", name, err)
	}

	res := &accountResources{
		name:      name,
		gateway:   deps.Gateway,
		ws:        deps.WS,
		positions: make(map[string]map[core.Direction]*core.PositionState),
		wallet:    walletCache{ttl: time.Duration(o.cfg.Orchestrator.WalletCacheInterval) * time.Second},
	}

	o.mu.Lock()
	o.accounts[name] = res
	o.mu.Unlock()
	return nil
}

// buildRunners constructs one runner and retry queue per configured
// strategy, wiring it to its owning account's gateway, and builds the
// symbol/account routing indexes.
func (o *Orchestrator) buildRunners() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, s := range o.cfg.Strategies {
		acc, ok := o.accounts[s.Account]
		if !ok {
			return fmt.Errorf("strategy %s: account %s not brought up", s.StratID, s.Account)
		}

		exec := execution.New(acc.gateway, o.deps.Logger, s.ShadowMode, execution.WithPool(o.restPool))
		queue := retryqueue.New(s.StratID, exec, o.deps.Logger, retryqueue.DefaultConfig())

		e := engine.New(s.Symbol, s.GridDirection(), s.GridConfig())
		if o.deps.AnchorStore != nil {
			if rec, ok, err := o.deps.AnchorStore.LoadAnchor(context.Background(), s.StratID); err == nil && ok {
				if anchorstore.MatchesConfig(rec, s.GridConfig()) {
					e.SetAnchor(rec.AnchorPrice)
				}
			}
		}

		baseQty := s.Amount.Fixed
		r := runner.New(s.StratID, s.Symbol, e, s.Risk.ToCore(), baseQty, exec, queue, o.deps.Logger, o.deps.Notifier)

		o.runners[s.StratID] = r
		o.queues[s.StratID] = queue
		o.eventPools[s.StratID] = concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:        "runner-" + s.StratID,
			MaxWorkers:  1,
			MaxCapacity: eventChanBuffer,
			NonBlocking: true,
		}, o.deps.Logger)
		acc.runners = append(acc.runners, r)
		o.bySymbol[s.Symbol] = append(o.bySymbol[s.Symbol], r)
		o.byAccountName[s.Account] = append(o.byAccountName[s.Account], r)
	}
	return nil
}

// submitToRunner posts fn to r's dedicated single-worker pool, never
// running it directly on the calling (WS callback) goroutine.
func (o *Orchestrator) submitToRunner(r *runner.Runner, what string, fn func()) {
	o.mu.RLock()
	pool := o.eventPools[r.StrategyID]
	o.mu.RUnlock()
	if pool == nil {
		return
	}
	if err := pool.Submit(fn); err != nil {
		o.deps.Logger.Warn("runner event pool full, dropping event", "strat_id", r.StrategyID, "kind", what)
	}
}

func (o *Orchestrator) reconcileAllStartup(ctx context.Context) {
	rec := reconcile.New(o.deps.Logger)
	o.mu.RLock()
	defer o.mu.RUnlock()

	for stratID, r := range o.runners {
		acc := o.ownerAccount(stratID)
		if acc == nil {
			continue
		}
		open, err := acc.gateway.GetOpenOrders(ctx, r.Symbol)
		if err != nil {
			o.deps.Logger.Warn("startup reconciliation fetch failed", "strat_id", stratID, "err", err)
			continue
		}
		tracked := make(map[string]*core.TrackedOrder)
		res := rec.ReconcileStartup(open, tracked)
		r.SeedTrackedOrders(tracked)
		o.deps.Logger.Info("startup reconciliation", "strat_id", stratID, "fetched", res.Fetched, "injected", res.Injected)
	}
}

func (o *Orchestrator) ownerAccount(stratID string) *accountResources {
	for _, s := range o.cfg.Strategies {
		if s.StratID == stratID {
			return o.accounts[s.Account]
		}
	}
	return nil
}

// connectAll connects every account's websocket and registers a health
// check for it.
func (o *Orchestrator) connectAll(ctx context.Context) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for name, acc := range o.accounts {
		name, acc := name, acc
		if acc.ws == nil {
			continue
		}
		if err := acc.ws.Connect(ctx, func(env core.EventEnvelope) { o.routeEvent(name, env) }); err != nil {
			return fmt.Errorf("connect account %s: %w", name, err)
		}
		if o.deps.Health != nil {
			o.deps.Health.Register("ws_"+name, func() error {
				if acc.ws.IsHealthy() {
					return nil
				}
				return fmt.Errorf("websocket disconnected")
			})
		}
	}
	return nil
}

// routeEvent dispatches one normalized event: ticker fans out to every
// runner on the symbol; order/execution route to runners for the symbol
// filtered by the owning account; position writes the account-local
// cache consumed by the position-check task.
func (o *Orchestrator) routeEvent(accountName string, env core.EventEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			o.deps.Logger.Error("panic in event routing", "account", accountName, "panic", r)
			o.deps.Notifier.Alert(fmt.Sprintf("panic routing event for %s: %v", accountName, r), "route_panic_"+accountName)
		}
	}()

	switch {
	case env.Ticker != nil:
		o.mu.RLock()
		targets := append([]*runner.Runner(nil), o.bySymbol[env.Ticker.Symbol]...)
		o.mu.RUnlock()
		ticker := env.Ticker
		for _, r := range targets {
			r := r
			o.submitToRunner(r, "ticker", func() { r.OnTicker(o.runnerCtx, ticker.LastPrice, r.OpenOrdersView()) })
		}
	case env.Execution != nil:
		exec := *env.Execution
		o.routeOrderScoped(accountName, env.Execution.Symbol, func(r *runner.Runner) {
			o.submitToRunner(r, "execution", func() { r.OnExecution(exec) })
		})
	case env.OrderUpdate != nil:
		upd := *env.OrderUpdate
		o.routeOrderScoped(accountName, env.OrderUpdate.Symbol, func(r *runner.Runner) {
			o.submitToRunner(r, "order_update", func() { r.OnOrderUpdate(upd) })
		})
	case env.Position != nil:
		o.mu.RLock()
		acc := o.accounts[accountName]
		o.mu.RUnlock()
		if acc != nil {
			st := env.Position.State
			o.storePosition(acc, env.Position.Symbol, env.Position.Direction, &st)
		}
	}
}

func (o *Orchestrator) routeOrderScoped(accountName, symbol string, fn func(*runner.Runner)) {
	o.mu.RLock()
	var targets []*runner.Runner
	for _, r := range o.bySymbol[symbol] {
		for _, ar := range o.byAccountName[accountName] {
			if ar == r {
				targets = append(targets, r)
			}
		}
	}
	o.mu.RUnlock()
	for _, r := range targets {
		fn(r)
	}
}

// scheduleTasks registers the three periodic tasks via robfig/cron's
// @every syntax, each respecting the orchestrator's shutdown context.
func (o *Orchestrator) scheduleTasks() {
	posInterval := o.cfg.Orchestrator.PositionCheckInterval
	if posInterval > 0 {
		id, _ := o.cron.AddFunc(fmt.Sprintf("@every %ds", posInterval), func() {
			o.positionCheckTask(o.runnerCtx)
		})
		o.cronIDs = append(o.cronIDs, id)
	}

	id, _ := o.cron.AddFunc("@every 10s", func() {
		o.healthCheckTask(o.runnerCtx)
	})
	o.cronIDs = append(o.cronIDs, id)

	if o.cfg.Orchestrator.OrderSyncInterval > 0 {
		id, _ := o.cron.AddFunc(fmt.Sprintf("@every %ds", o.cfg.Orchestrator.OrderSyncInterval), func() {
			o.orderSyncTask(o.runnerCtx)
		})
		o.cronIDs = append(o.cronIDs, id)
	}
}

// positionCheckTask refreshes each account's wallet balance (if enabled),
// reads both legs of every runner's position from the WS cache, falling
// back to one lazy REST fetch per account per tick when either leg is
// missing, then invokes the runner's position update.
func (o *Orchestrator) positionCheckTask(ctx context.Context) {
	o.mu.RLock()
	accounts := make([]*accountResources, 0, len(o.accounts))
	for _, a := range o.accounts {
		accounts = append(accounts, a)
	}
	o.mu.RUnlock()

	for _, acc := range accounts {
		if ctx.Err() != nil {
			return
		}
		if _, err := acc.wallet.get(ctx, func(c context.Context) (decimal.Decimal, error) {
			return acc.gateway.GetWalletBalance(c, "USDT")
		}); err != nil {
			o.deps.Logger.Warn("wallet balance refresh failed", "account", acc.name, "err", err)
		}

		fetchedREST := false
		for _, r := range acc.runners {
			long := o.cachedPosition(acc, r.Symbol, core.DirectionLong)
			short := o.cachedPosition(acc, r.Symbol, core.DirectionShort)

			if (long == nil || short == nil) && !fetchedREST {
				fetchedREST = true
				if l, err := acc.gateway.GetPosition(ctx, r.Symbol, core.DirectionLong); err == nil {
					o.storePosition(acc, r.Symbol, core.DirectionLong, l)
					long = l
				}
				if s, err := acc.gateway.GetPosition(ctx, r.Symbol, core.DirectionShort); err == nil {
					o.storePosition(acc, r.Symbol, core.DirectionShort, s)
					short = s
				}
			}
			if long == nil || short == nil {
				continue
			}
			r, long, short := r, long, short
			o.submitToRunner(r, "position_update", func() { r.OnPositionUpdate(long, short) })
		}
	}
}

func (o *Orchestrator) cachedPosition(acc *accountResources, symbol string, dir core.Direction) *core.PositionState {
	acc.posMu.RLock()
	defer acc.posMu.RUnlock()
	bySide, ok := acc.positions[symbol]
	if !ok {
		return nil
	}
	return bySide[dir]
}

func (o *Orchestrator) storePosition(acc *accountResources, symbol string, dir core.Direction, pos *core.PositionState) {
	acc.posMu.Lock()
	defer acc.posMu.Unlock()
	if acc.positions[symbol] == nil {
		acc.positions[symbol] = make(map[core.Direction]*core.PositionState)
	}
	acc.positions[symbol][dir] = pos
}

// healthCheckTask queries each account's websocket connectivity; on a
// disconnect it notifies, then disconnects, reconnects, and explicitly
// resubscribes. Subscriptions are never assumed to survive a fresh
// connection.
func (o *Orchestrator) healthCheckTask(ctx context.Context) {
	o.mu.RLock()
	accounts := make([]*accountResources, 0, len(o.accounts))
	for _, a := range o.accounts {
		accounts = append(accounts, a)
	}
	o.mu.RUnlock()

	for _, acc := range accounts {
		if acc.ws == nil || acc.ws.IsHealthy() {
			continue
		}
		o.deps.Notifier.Alert("websocket disconnected for "+acc.name, "ws_disconnect_"+acc.name)
		acc.ws.Disconnect()
		name := acc.name
		if err := acc.ws.Connect(ctx, func(env core.EventEnvelope) { o.routeEvent(name, env) }); err != nil {
			o.deps.Notifier.AlertException("websocket reconnect", err, "ws_reconnect_"+acc.name)
			continue
		}
		if err := acc.ws.Resubscribe(ctx); err != nil {
			o.deps.Notifier.AlertException("websocket resubscribe", err, "ws_resubscribe_"+acc.name)
		}
	}
}

// orderSyncTask runs the reconciler's periodic pass for every runner,
// comparing the exchange's open-orders view against each runner's actual
// tracked-order map (injections land there directly, since Go maps are
// reference types) and logging orphans surfaced by the fetch for
// operator visibility. The same cadence persists each runner's current
// grid anchor and, if the risk-limit cache is configured, refreshes it
// so leverage tiers stay current without a dedicated task.
func (o *Orchestrator) orderSyncTask(ctx context.Context) {
	rec := reconcile.New(o.deps.Logger)
	o.mu.RLock()
	runners := make(map[string]*runner.Runner, len(o.runners))
	for k, v := range o.runners {
		runners[k] = v
	}
	o.mu.RUnlock()

	for stratID, r := range runners {
		acc := o.ownerAccount(stratID)
		if acc == nil {
			continue
		}
		// The fetch is network I/O and stays on the cron goroutine; the
		// diff touches the runner's live tracked map, which only the
		// runner's single event worker may iterate or write, so it is
		// submitted there like every other runner-state mutation.
		open, fetchErr := acc.gateway.GetOpenOrders(ctx, r.Symbol)
		stratID, r := stratID, r
		o.submitToRunner(r, "order_sync", func() {
			res := rec.ReconcilePeriodic(open, fetchErr, r.TrackedOrders())
			if len(res.Errors) > 0 {
				o.deps.Logger.Warn("order sync fetch failed", "strat_id", stratID, "err", res.Errors[0])
			}
			if res.Orphans > 0 {
				o.deps.Logger.Warn("order sync found orphans", "strat_id", stratID, "orphans", res.Orphans)
			}

			if o.deps.AnchorStore != nil {
				if anchor, ok := r.AnchorRecord(); ok {
					if err := o.deps.AnchorStore.SaveAnchor(ctx, stratID, anchor); err != nil {
						o.deps.Logger.Warn("anchor save failed", "strat_id", stratID, "err", err)
					}
				}
			}
		})
	}

	if o.deps.RiskLimit != nil {
		if err := o.deps.RiskLimit.Refresh(ctx); err != nil {
			o.deps.Logger.Warn("risk-limit cache refresh failed", "err", err)
		}
	}
}

// Stop cancels all background tasks, stops retry queues, and disconnects
// every account's websocket. Safe to call once; subsequent calls are
// no-ops.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.stopOnce.Do(func() {
		o.cron.Stop()
		if o.runnerCancel != nil {
			o.runnerCancel()
		}

		o.mu.RLock()
		queues := make([]*retryqueue.Queue, 0, len(o.queues))
		for _, q := range o.queues {
			queues = append(queues, q)
		}
		accounts := make([]*accountResources, 0, len(o.accounts))
		for _, a := range o.accounts {
			accounts = append(accounts, a)
		}
		o.mu.RUnlock()

		for _, q := range queues {
			q.Stop()
		}
		o.wg.Wait()

		for _, acc := range accounts {
			if acc.ws != nil {
				acc.ws.Disconnect()
			}
		}

		o.mu.RLock()
		pools := make([]*concurrency.WorkerPool, 0, len(o.eventPools))
		for _, p := range o.eventPools {
			pools = append(pools, p)
		}
		o.mu.RUnlock()
		for _, p := range pools {
			p.Stop()
		}
		o.restPool.Stop()

		o.deps.Logger.Info("orchestrator stopped", "run_id", o.runID)
	})
}
