package checkout

import (
	"context"
	"time"

	"checkout/api/internal/logger"
)

// Retrier periodically registers provider charges for PIX orders that were
// stored but whose charge registration failed.
type Retrier struct {
	svc      *Service
	interval time.Duration
	// settle skips orders younger than this so the request that created
	// them can finish its own registration.
	settle time.Duration
	batch  int
}

func NewRetrier(svc *Service, interval, settle time.Duration) *Retrier {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Retrier{svc: svc, interval: interval, settle: settle, batch: 20}
}

// Run retries on every tick until ctx is cancelled.
func (r *Retrier) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	logger.Infof("[RETRY] Reprocessamento de cobranças PIX a cada %s", r.interval)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("[RETRY] Reprocessamento encerrado")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce makes one pass and reports how many orders got a charge and how
// many still failed.
func (r *Retrier) RunOnce(ctx context.Context) (linked, failed int) {
	ids, err := r.svc.store.PixOrdersAwaitingCharge(ctx, time.Now().Add(-r.settle), r.batch)
	if err != nil {
		logger.Errorf("[RETRY] Erro ao listar pedidos sem cobrança: %v", err)
		return 0, 0
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return linked, failed
		}
		o, err := r.svc.RegisterCharge(ctx, id)
		if err != nil {
			failed++
			logger.Warnf("[RETRY] Pedido %d continua sem cobrança: %v", id, err)
			continue
		}
		linked++
		logger.Infof("[RETRY] Pedido %d vinculado à cobrança %s", id, o.ChargeID)
	}
	return linked, failed
}
