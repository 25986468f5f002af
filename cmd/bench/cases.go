// README: Bench cases: environment, order lifecycle, accept race, cancellation, consistency and load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	statusPass    = "PASS"
	statusFail    = "FAIL"
	statusPending = "PENDING"
	statusSkip    = "SKIP"

	driverPoolKey = "pool:drivers"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// Flow state shared by the lifecycle cases, which run in order.
	clientID string
	orderID  string
	offerIDs []string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

type orderView struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	StatusVersion  int    `json:"status_version"`
	SuggestedPrice struct {
		Amount int64 `json:"amount"`
	} `json:"suggested_price"`
}

type offerView struct {
	ID    string `json:"id"`
	Price struct {
		Amount int64 `json:"amount"`
	} `json:"price"`
	ETAMinutes int `json:"eta_minutes"`
}

var (
	casablanca = map[string]any{"lat": 33.5731, "lng": -7.5898}
	rabat      = map[string]any{"lat": 34.0209, "lng": -6.8416, "address": "Rabat"}
)

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:      cfg,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		clientID: "bench-" + uuid.NewString(),
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "database reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusSkip, Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "redis reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: statusSkip, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "apply migration SQL",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: statusSkip, Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "tables from migrations/0001_init.sql",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusSkip, Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: statusFail, Note: "missing table: " + t}
					}
				}
				return Result{Status: statusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
			},
		},
		httpCase("API: health", http.MethodGet, base+"/health", nil, []int{200}),

		// Lifecycle
		{
			Name:  "Order: create request",
			Focus: "POST /api/orders opens a SEARCHING-ready order",
			Run: func(ctx context.Context, r *Runner) Result {
				var o orderView
				res := r.call(ctx, http.MethodPost, base+"/api/orders", r.orderBody(), &o, 201)
				if res.Status == statusPass {
					r.orderID = o.ID
					res.Note = fmt.Sprintf("id=%s suggested=%d", o.ID, o.SuggestedPrice.Amount)
				}
				return res
			},
		},
		httpCase("Order: create request (missing pickup -> 400)", http.MethodPost, base+"/api/orders", map[string]any{
			"client_id": "bench-invalid",
			"cargo":     map[string]any{"item_type": "Sofa", "category": "Furniture", "weight": 40, "weight_unit": "kg", "vehicle_type": "VAN"},
		}, []int{400}),
		{
			Name:  "Order: duplicate active request -> 409",
			Focus: "one active order per client",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.call(ctx, http.MethodPost, base+"/api/orders", r.orderBody(), nil, 409)
			},
		},
		r.flowCase("Order: broadcast", func(ctx context.Context, r *Runner) Result {
			var o orderView
			res := r.call(ctx, http.MethodPost, r.orderURL("/broadcast"), map[string]any{"destination": rabat}, &o, 200)
			return expectStatus(res, o, "SEARCHING")
		}),
		r.flowCase("Order: driver bids", func(ctx context.Context, r *Runner) Result {
			n := max(r.cfg.Concurrency, 2)
			start := time.Now()
			for i := 0; i < n; i++ {
				var off offerView
				res := r.call(ctx, http.MethodPost, base+"/api/jobs/"+r.orderID+"/offers", map[string]any{
					"driver_id":     fmt.Sprintf("bench-driver-%d", i),
					"driver_name":   fmt.Sprintf("Bench %d", i),
					"driver_rating": 4.5,
					"vehicle_type":  "VAN",
					"price":         200 + 10*i,
					"eta_minutes":   5 + i%7,
				}, &off, 201)
				if res.Status != statusPass {
					return res
				}
			}
			return Result{Status: statusPass, Latency: time.Since(start), Note: fmt.Sprintf("bids=%d", n)}
		}),
		r.flowCase("Order: offers ranked by price", func(ctx context.Context, r *Runner) Result {
			var body struct {
				Offers []offerView `json:"offers"`
			}
			res := r.call(ctx, http.MethodGet, r.orderURL("/offers"), nil, &body, 200)
			if res.Status != statusPass {
				return res
			}
			r.offerIDs = r.offerIDs[:0]
			for i, off := range body.Offers {
				if i > 0 && off.Price.Amount < body.Offers[i-1].Price.Amount {
					return Result{Status: statusFail, Note: fmt.Sprintf("offer %d cheaper than offer %d", i, i-1)}
				}
				r.offerIDs = append(r.offerIDs, off.ID)
			}
			res.Note = fmt.Sprintf("offers=%d", len(body.Offers))
			return res
		}),
		r.flowCase("Concurrency: multi accept same order", func(ctx context.Context, r *Runner) Result {
			return concurrentAccept(ctx, r, r.orderURL("/accept"))
		}),
		r.flowCase("Order: advance to picked up", func(ctx context.Context, r *Runner) Result {
			var body struct {
				Status string `json:"status"`
			}
			res := r.call(ctx, http.MethodPost, r.orderURL("/advance"), nil, &body, 200)
			return expectStatus(res, orderView{Status: body.Status}, "PICKED_UP")
		}),
		r.flowCase("Order: advance to delivered", func(ctx context.Context, r *Runner) Result {
			var body struct {
				Status string `json:"status"`
			}
			res := r.call(ctx, http.MethodPost, r.orderURL("/advance"), nil, &body, 200)
			return expectStatus(res, orderView{Status: body.Status}, "DELIVERED")
		}),
		r.flowCase("Order: delivered cannot advance", func(ctx context.Context, r *Runner) Result {
			return r.call(ctx, http.MethodPost, r.orderURL("/advance"), nil, nil, 409)
		}),
		r.flowCase("Cancel: delivered order stays delivered", func(ctx context.Context, r *Runner) Result {
			var o orderView
			res := r.call(ctx, http.MethodPost, r.orderURL("/cancel"), map[string]any{"actor_type": "client", "reason": "bench"}, &o, 200)
			return expectStatus(res, o, "DELIVERED")
		}),

		// Cancellation
		{
			Name:  "Cancel: searching order, then cancel again",
			Focus: "cancel is idempotent",
			Run: func(ctx context.Context, r *Runner) Result {
				r.clientID = "bench-" + uuid.NewString()
				var o orderView
				if res := r.call(ctx, http.MethodPost, base+"/api/orders", r.orderBody(), &o, 201); res.Status != statusPass {
					return res
				}
				r.orderID = o.ID
				if res := r.call(ctx, http.MethodPost, r.orderURL("/broadcast"), map[string]any{"destination": rabat}, nil, 200); res.Status != statusPass {
					return res
				}
				for i := 0; i < 2; i++ {
					res := r.call(ctx, http.MethodPost, r.orderURL("/cancel"), map[string]any{"actor_type": "client", "reason": "change_plans"}, &o, 200)
					if res = expectStatus(res, o, "CANCELLED"); res.Status != statusPass {
						return res
					}
				}
				return Result{Status: statusPass, Note: "version=" + fmt.Sprint(o.StatusVersion)}
			},
		},
		r.flowCase("Cancel: accept after cancel -> 409", func(ctx context.Context, r *Runner) Result {
			return r.call(ctx, http.MethodPost, r.orderURL("/accept"), map[string]any{"offer_id": "missing"}, nil, 409)
		}),
		manualCase("Cancel: timeout cancel", "shorten HAUL_ORDER_SEARCH_TIMEOUT_SECONDS and watch the monitor"),

		// Consistency
		r.flowCase("Consistency: transitions recorded", func(ctx context.Context, r *Runner) Result {
			var body struct {
				Transitions []json.RawMessage `json:"transitions"`
			}
			res := r.call(ctx, http.MethodGet, r.orderURL("/transitions"), nil, &body, 200)
			if res.Status == statusPass && len(body.Transitions) < 2 {
				return Result{Status: statusFail, Note: fmt.Sprintf("transitions=%d", len(body.Transitions))}
			}
			res.Note = fmt.Sprintf("transitions=%d", len(body.Transitions))
			return res
		}),
		r.flowCase("Consistency: row matches API", func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: statusSkip, Note: "db not configured"}
			}
			var status string
			var version, transitions int
			err := r.db.QueryRow(ctx, `
				SELECT o.status, o.status_version,
				       (SELECT count(*) FROM order_transitions t WHERE t.order_id = o.id)
				FROM orders o WHERE o.id = $1`, r.orderID,
			).Scan(&status, &version, &transitions)
			if err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			if status != "CANCELLED" || transitions == 0 {
				return Result{Status: statusFail, Note: fmt.Sprintf("status=%s version=%d transitions=%d", status, version, transitions)}
			}
			return Result{Status: statusPass, Note: fmt.Sprintf("version=%d transitions=%d", version, transitions)}
		}),

		// Driver pool
		httpCase("Matching: driver availability", http.MethodPut, base+"/api/drivers/bench-d1/availability", map[string]any{
			"name":         "Bench Driver",
			"rating":       4.7,
			"vehicle_type": "VAN",
			"lat":          33.5731,
			"lng":          -7.5898,
			"online":       true,
		}, []int{200}),
		httpCase("Matching: invalid coords -> 400", http.MethodPut, base+"/api/drivers/bench-d1/availability", map[string]any{
			"vehicle_type": "VAN",
			"lat":          123.0,
			"lng":          456.0,
			"online":       true,
		}, []int{400}),
		{
			Name:  "Matching: driver in redis pool",
			Focus: "availability lands in the geo set",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: statusSkip, Note: "redis not configured"}
				}
				pos, err := r.redis.GeoPos(ctx, driverPoolKey, "bench-d1").Result()
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				if len(pos) == 0 || pos[0] == nil {
					return Result{Status: statusFail, Note: "bench-d1 missing from " + driverPoolKey}
				}
				return Result{Status: statusPass, Note: fmt.Sprintf("lat=%.4f lng=%.4f", pos[0].Latitude, pos[0].Longitude)}
			},
		},
		manualCase("Tracking: ETA countdown", "open /ws/orders/:id on an accepted order and watch position_updated"),

		// Error handling
		manualCase("Error: DB down -> 500", "stop postgres and observe responses"),
		manualCase("Error: Redis down -> 500", "stop redis and observe availability updates"),

		// Load
		{
			Name:  "Perf: availability update throughput",
			Focus: "50-100 position updates per second",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodPut, base+"/api/drivers/bench-load/availability", map[string]any{
					"vehicle_type": "TRUCK",
					"lat":          33.5731,
					"lng":          -7.5898,
					"online":       true,
				})
			},
		},
		{
			Name:  "Perf: job board reads",
			Focus: "open jobs listing under load",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodGet, base+"/api/jobs", nil)
			},
		},
	}
}

func (r *Runner) orderBody() map[string]any {
	return map[string]any{
		"client_id": r.clientID,
		"cargo": map[string]any{
			"item_type":    "Sofa",
			"category":     "Furniture",
			"weight":       50,
			"weight_unit":  "kg",
			"vehicle_type": "VAN",
		},
		"pickup": casablanca,
	}
}

func (r *Runner) orderURL(suffix string) string {
	return r.cfg.BaseURL + "/api/orders/" + r.orderID + suffix
}

// flowCase skips when an earlier lifecycle case failed to create the order.
func (r *Runner) flowCase(name string, run func(ctx context.Context, r *Runner) Result) TestCase {
	return TestCase{
		Name:  name,
		Focus: "order lifecycle",
		Run: func(ctx context.Context, r *Runner) Result {
			if r.orderID == "" {
				return Result{Status: statusSkip, Note: "no order"}
			}
			return run(ctx, r)
		},
	}
}

// call sends body as JSON and decodes a response with one of the wanted codes into out.
func (r *Runner) call(ctx context.Context, method, url string, body, out any, want ...int) Result {
	code, latency, raw, err := r.send(ctx, method, url, body)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	note := fmt.Sprintf("status=%d", code)
	if !contains(want, code) {
		if code == http.StatusNotFound || code == http.StatusNotImplemented {
			return Result{Status: statusPending, Latency: latency, Note: note}
		}
		return Result{Status: statusFail, Latency: latency, Note: note + " body=" + strings.TrimSpace(string(raw))}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return Result{Status: statusFail, Latency: latency, Note: "decode: " + err.Error()}
		}
	}
	return Result{Status: statusPass, Latency: latency, Note: note}
}

func (r *Runner) send(ctx context.Context, method, url string, body any) (int, time.Duration, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, time.Since(start), raw, err
}

func expectStatus(res Result, o orderView, want string) Result {
	if res.Status != statusPass {
		return res
	}
	if o.Status != want {
		return Result{Status: statusFail, Latency: res.Latency, Note: fmt.Sprintf("status=%s want=%s", o.Status, want)}
	}
	return res
}

func httpCase(name, method, url string, body any, okStatuses []int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			return r.call(ctx, method, url, body, nil, okStatuses...)
		},
	}
}

func manualCase(name, note string) TestCase {
	return TestCase{
		Name:  name,
		Focus: "Manual",
		Run: func(ctx context.Context, r *Runner) Result {
			return Result{Status: statusSkip, Note: note}
		},
	}
}

// concurrentAccept races one accept per offer; exactly one may win.
func concurrentAccept(ctx context.Context, r *Runner, url string) Result {
	if len(r.offerIDs) == 0 {
		return Result{Status: statusSkip, Note: "no offers"}
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		won      int
		rejected int
		other    []int
	)
	start := time.Now()
	for i := 0; i < r.cfg.Concurrency; i++ {
		offerID := r.offerIDs[i%len(r.offerIDs)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, _, _, err := r.send(ctx, http.MethodPost, url, map[string]any{"offer_id": offerID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				other = append(other, 0)
			case code == http.StatusOK:
				won++
			case code == http.StatusConflict:
				rejected++
			default:
				other = append(other, code)
			}
		}()
	}
	wg.Wait()

	note := fmt.Sprintf("won=%d rejected=%d other=%v", won, rejected, other)
	if won == 1 && len(other) == 0 {
		return Result{Status: statusPass, Latency: time.Since(start), Note: note}
	}
	return Result{Status: statusFail, Latency: time.Since(start), Note: note}
}

func perfLoad(ctx context.Context, r *Runner, method, url string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		count    int64
		errCount int64
	)

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, _, err := r.send(ctx, method, url, payload)
				mu.Lock()
				if err != nil || code >= 400 {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("no requests completed, errors=%d", errCount)}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	cleaned := strings.Join(filtered, "\n")
	parts := strings.Split(cleaned, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
