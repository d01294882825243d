// Package demo wires a small buyer/seller negotiation on top of the runtime.
// It is what `deliberate run` executes.
package demo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deliberate/pkg/agent"
	"github.com/xkilldash9x/deliberate/pkg/environment"
	"github.com/xkilldash9x/deliberate/pkg/platform"
	"github.com/xkilldash9x/deliberate/pkg/suspend"
)

const (
	SellerType agent.Type = "seller"
	BuyerType  agent.Type = "buyer"

	bidStep = 10
)

// Offer is sent by a buyer to the seller.
type Offer struct {
	From  agent.ID
	Price int
}

// Accept and Reject are the seller's answers to an Offer.
type Accept struct{ Price int }

type Reject struct{ Price int }

// Receipt records a settled deal.
type Receipt struct {
	Buyer    string    `json:"buyer"`
	Price    int       `json:"price"`
	SettleAt time.Time `json:"settled_at"`
}

// Ledger is the seller's record of settled deals. The CLI reads it while
// agents write it, so it is guarded. Accepted deals stay open until their
// settlement lands.
type Ledger struct {
	mu       sync.Mutex
	receipts []Receipt
	open     int
	settled  chan struct{}
}

func (l *Ledger) opened() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open == 0 {
		l.settled = make(chan struct{})
	}
	l.open++
}

// closeDeal settles one open deal; a nil receipt means settlement failed.
func (l *Ledger) closeDeal(r *Receipt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r != nil {
		l.receipts = append(l.receipts, *r)
	}
	if l.open == 0 {
		return
	}
	l.open--
	if l.open == 0 {
		close(l.settled)
	}
}

// Settled blocks until no accepted deal is waiting for settlement.
func (l *Ledger) Settled(ctx context.Context) error {
	l.mu.Lock()
	if l.open == 0 {
		l.mu.Unlock()
		return nil
	}
	ch := l.settled
	l.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receipts returns a copy of the settled deals.
func (l *Ledger) Receipts() []Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Receipt(nil), l.receipts...)
}

// SellerTerms is the seller's context.
type SellerTerms struct {
	Ask    int
	Ledger *Ledger
}

// BuyerArgs are the construction arguments of a buyer.
type BuyerArgs struct {
	Seller agent.ID
	Start  int
	Max    int
}

// Wallet is the buyer's context.
type Wallet struct {
	Args   BuyerArgs
	Paid   int
	Bought bool
}

// BuyGoal is achieved once the buyer owns the item. Bid is the next price
// to offer.
type BuyGoal struct {
	agent.GoalBase
	Bid int
}

func (g *BuyGoal) IsAchieved(ctx agent.ContextView) bool {
	w, err := agent.ContextOf[*Wallet](ctx)
	return err == nil && w.Bought
}

// SellerBuilder describes the seller: every offer is answered right away and
// accepted deals are settled on the executor.
func SellerBuilder(terms *SellerTerms, exec *suspend.Executor) *platform.Builder {
	return platform.NewBuilder(SellerType).
		AddContext(terms, exec).
		AddMessageScheme(agent.SchemeFunc(func(t agent.Trigger, ctx agent.ContextView) (agent.Plan, bool) {
			offer, ok := t.(*Offer)
			if !ok {
				return nil, false
			}
			return agent.RunOnce(func(pc agent.PlanContext) error {
				return answerOffer(pc, offer)
			}), true
		})).
		AddInternalScheme(agent.SchemeFunc(func(t agent.Trigger, ctx agent.ContextView) (agent.Plan, bool) {
			res, ok := t.(*suspend.Result[Receipt])
			if !ok {
				return nil, false
			}
			return agent.RunOnce(func(pc agent.PlanContext) error {
				ledger := agent.MustContext[*SellerTerms](pc.Contexts()).Ledger
				if res.Err != nil {
					pc.Logger().Warn("Settlement failed.", zap.Error(res.Err))
					ledger.closeDeal(nil)
					return nil
				}
				ledger.closeDeal(&res.Value)
				return nil
			}), true
		}))
}

func answerOffer(pc agent.PlanContext, offer *Offer) error {
	terms := agent.MustContext[*SellerTerms](pc.Contexts())
	if offer.Price < terms.Ask {
		return pc.SendMessage(offer.From, &Reject{Price: offer.Price})
	}
	// The deal is open before the buyer hears of it, so the buyer's exit
	// can never overtake it.
	terms.Ledger.opened()
	if err := pc.SendMessage(offer.From, &Accept{Price: offer.Price}); err != nil {
		terms.Ledger.closeDeal(nil)
		return err
	}
	buyer := offer.From.String()
	err := suspend.NotifyResult(pc, func(ctx context.Context) (Receipt, error) {
		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
		return Receipt{Buyer: buyer, Price: offer.Price, SettleAt: time.Now()}, nil
	})
	if err != nil {
		terms.Ledger.closeDeal(nil)
	}
	return err
}

// BuyerBuilder describes a buyer: it adopts a BuyGoal, makes an offer, and
// on rejection raises its bid and waits for the next clock tick to retry.
// It gives up, and finishes, once the bid would exceed its maximum.
func BuyerBuilder() *platform.Builder {
	return platform.NewBuilder(BuyerType).
		AddContextFunc(func(args any) (any, error) {
			a, ok := args.(BuyerArgs)
			if !ok {
				return nil, fmt.Errorf("buyer expects BuyerArgs, got %T", args)
			}
			if a.Seller.IsZero() {
				return nil, errors.New("buyer needs a seller")
			}
			return &Wallet{Args: a}, nil
		}).
		AddPlan(func() agent.Plan {
			return agent.RunOnce(func(pc agent.PlanContext) error {
				w := agent.MustContext[*Wallet](pc.Contexts())
				pc.AdoptGoal(&BuyGoal{Bid: w.Args.Start})
				return nil
			})
		}).
		AddGoalScheme(agent.SchemeFunc(func(t agent.Trigger, ctx agent.ContextView) (agent.Plan, bool) {
			g, ok := t.(*BuyGoal)
			if !ok {
				return nil, false
			}
			return newNegotiation(g), true
		})).
		AddInternalScheme(agent.SchemeFunc(func(t agent.Trigger, ctx agent.ContextView) (agent.Plan, bool) {
			var failed *agent.PlanExecutionError
			if !errors.As(asError(t), &failed) {
				return nil, false
			}
			return agent.RunOnce(func(pc agent.PlanContext) error {
				pc.Logger().Warn("Negotiation failed, giving up.", zap.Error(failed))
				pc.Finish()
				return nil
			}), true
		}))
}

func asError(t agent.Trigger) error {
	err, _ := t.(error)
	return err
}

// newNegotiation makes one offer for g. The goal is parked while the answer
// is outstanding, so the buyer sleeps instead of spinning; the seller's answer
// fires one of two mutually exclusive message waits.
func newNegotiation(g *BuyGoal) agent.Plan {
	return agent.RunOnce(func(pc agent.PlanContext) error {
		return makeOffer(pc, g)
	})
}

func makeOffer(pc agent.PlanContext, g *BuyGoal) error {
	w := agent.MustContext[*Wallet](pc.Contexts())
	if err := pc.SendMessage(w.Args.Seller, &Offer{From: pc.ID(), Price: g.Bid}); err != nil {
		return err
	}
	pc.DropGoal(g)

	accepted := suspend.WaitForMessage(pc, isAccept, func(t agent.Trigger, pc agent.PlanContext) error {
		w.Paid = t.(*Accept).Price
		w.Bought = true
		pc.Logger().Info("Deal closed.", zap.Int("price", w.Paid))
		pc.Finish()
		return nil
	})
	rejected := suspend.WaitForMessage(pc, isReject, func(t agent.Trigger, pc agent.PlanContext) error {
		next := g.Bid + bidStep
		if next > w.Args.Max {
			pc.Logger().Info("Bid limit reached, giving up.", zap.Int("last_bid", g.Bid))
			pc.Finish()
			return nil
		}
		g.Bid = next
		suspend.SuspendGoalUntil(pc, g, isTick)
		return nil
	})
	suspend.MutuallyExclusive(accepted, rejected)
	return nil
}

func isAccept(t agent.Trigger) bool {
	_, ok := t.(*Accept)
	return ok
}

func isReject(t agent.Trigger) bool {
	_, ok := t.(*Reject)
	return ok
}

func isTick(t agent.Trigger) bool {
	_, ok := t.(*environment.Tick)
	return ok
}
