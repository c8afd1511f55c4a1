package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	roleAuth "github.com/MrEthical07/roleAuth"
	"github.com/MrEthical07/roleAuth/directory"
	"github.com/MrEthical07/roleAuth/role"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type userState struct {
	email     string
	principal *roleAuth.Principal
	token     string
	mu        sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 1000, "number of users to seed and log in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (authenticate + switch)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "session key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, dir, err := buildEngine(client, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	hash, err := engine.HashPassword("loadtest")
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash failed: %v\n", err)
		os.Exit(1)
	}

	states := make([]*userState, *users)
	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	for i := range states {
		email := fmt.Sprintf("user-%d@loadtest.local", i)
		if err := dir.Put(&directory.User{
			Email:        email,
			GrantedRoles: role.NewSet(role.PM, role.BA),
			ActiveRole:   role.PM,
			PasswordHash: hash,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		info, err := engine.Login(ctx, email, "loadtest")
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		p, err := engine.Authenticate(ctx, info.Token)
		if err != nil {
			fmt.Fprintf(os.Stderr, "authenticate failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = &userState{email: email, principal: p, token: info.Token}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runPhase(*ops, *concurrency, 7919, func(r *mrand.Rand, _ int) (time.Duration, bool) {
		s := states[r.Intn(len(states))]
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()

		t0 := time.Now()
		_, err := engine.Authenticate(ctx, token)
		return time.Since(t0), err == nil
	})

	switchStats := runPhase(*ops, *concurrency, 6151, func(r *mrand.Rand, _ int) (time.Duration, bool) {
		s := states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()

		target := role.BA
		if s.principal.Active == role.BA {
			target = role.PM
		}
		t0 := time.Now()
		info, err := engine.SwitchRole(ctx, roleAuth.SwitchRoleRequest{Role: target.String()}, s.principal)
		d := time.Since(t0)
		if err != nil {
			return d, false
		}
		p, err := engine.Authenticate(ctx, info.Token)
		if err != nil {
			return d, false
		}
		s.principal, s.token = p, info.Token
		return d, true
	})

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("switch", switchStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("switch: contended=%d compensated=%d compensation_failed=%d\n",
		snap.Counters[roleAuth.MetricRoleSwitchContended],
		snap.Counters[roleAuth.MetricRoleSwitchCompensated],
		snap.Counters[roleAuth.MetricRoleSwitchCompensationFailed],
	)
}

func buildEngine(client redis.UniversalClient, prefix string) (*roleAuth.Engine, *directory.Memory, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	cfg := roleAuth.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Session.RedisPrefix = prefix
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.MaxSwitchesPerWindow = 0
	cfg.RateLimit.MaxLoginAttempts = 0
	cfg.Metrics.Enabled = true

	dir := directory.NewMemory()
	engine, err := roleAuth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithDirectory(dir).
		Build()
	return engine, dir, err
}

func runPhase(ops, concurrency int, seed int64, op func(r *mrand.Rand, i int) (time.Duration, bool)) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				d, ok := op(r, i)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
