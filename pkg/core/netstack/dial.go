package netstack

import (
    "context"
    "fmt"
    "math/rand/v2"
    "time"

    "go.uber.org/zap"

    "github.com/autcn/SiS.Communcation-sub001/pkg/config"
    "github.com/autcn/SiS.Communcation-sub001/pkg/transport"
)

// Backoff controls dial retries.
type Backoff struct {
    Initial time.Duration
    Max     time.Duration
    Jitter  time.Duration
    // Attempts bounds the number of dials; 0 retries until ctx is done.
    Attempts int
}

// BackoffFromConfig converts the net section of the configuration.
func BackoffFromConfig(c config.NetConfig) Backoff {
    return Backoff{
        Initial:  time.Duration(c.DialBackoffInitialMS) * time.Millisecond,
        Max:      time.Duration(c.DialBackoffMaxMS) * time.Millisecond,
        Jitter:   time.Duration(c.DialBackoffJitterMS) * time.Millisecond,
        Attempts: c.DialAttempts,
    }
}

// Dial connects to address, retrying with exponential backoff until a
// session is established, the attempts are used up or ctx is done.
func Dial(ctx context.Context, tr transport.Transport, address string, b Backoff) (transport.Session, error) {
    backoff := b.Initial
    if backoff <= 0 { backoff = 500 * time.Millisecond }
    maxBackoff := b.Max
    if maxBackoff <= 0 { maxBackoff = 30 * time.Second }

    var lastErr error
    for attempt := 1; b.Attempts <= 0 || attempt <= b.Attempts; attempt++ {
        if err := ctx.Err(); err != nil { return nil, err }
        sess, err := tr.Dial(ctx, address)
        if err == nil {
            zap.L().Info("dialed", zap.String("kind", tr.Kind().String()), zap.String("addr", address), zap.Int("attempt", attempt))
            return sess, nil
        }
        lastErr = err
        zap.L().Warn("dial failed", zap.String("kind", tr.Kind().String()), zap.String("addr", address), zap.Int("attempt", attempt), zap.Error(err))
        if b.Attempts > 0 && attempt == b.Attempts { break }

        t := time.NewTimer(withJitter(backoff, b.Jitter))
        select {
        case <-ctx.Done():
            t.Stop()
            return nil, ctx.Err()
        case <-t.C:
        }
        if backoff < maxBackoff {
            backoff *= 2
            if backoff > maxBackoff { backoff = maxBackoff }
        }
    }
    return nil, fmt.Errorf("dial %s %s: %w", tr.Kind(), address, lastErr)
}

func withJitter(d, jitter time.Duration) time.Duration {
    if jitter <= 0 { return d }
    return d + rand.N(jitter)
}
