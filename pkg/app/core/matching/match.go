package matching

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperspot/pkg/app/core/fixed"
	"github.com/uhyunpark/hyperspot/pkg/app/core/market"
	"github.com/uhyunpark/hyperspot/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperspot/pkg/app/core/settlement"
)

// fill is one planned execution against a resting maker.
type fill struct {
	maker        *orderbook.Order
	qty          fixed.Amount
	quote        fixed.Amount
	makerRelease fixed.Amount // maker reservation consumed
	takerRelease fixed.Amount // taker reservation consumed
	makerDone    bool
}

// plan is the read-only result of walking the opposite side.
type plan struct {
	fills        []fill
	filled       fixed.Amount // base executed
	remaining    fixed.Amount // base left; zero for an uncapped BidMarket
	reservedLeft fixed.Amount // taker reservation not consumed by fills
	budgetLeft   fixed.Amount // BidMarket only
	dust         bool         // stopped on a fill whose quote rounds to zero
}

// SubmitOrder admits req, matches it against the opposite side of its book
// and rests or discards the remainder.
//
// A rejected submission leaves the book and every reservation exactly as
// they were. A settlement failure on any fill aborts the whole match.
func (ex *Exchange) SubmitOrder(req OrderRequest) (*SubmitOutcome, error) {
	start := time.Now()
	label := ex.pairLabel(req.Pair)
	ex.metrics.orderReceived(label, req.Kind)

	out, err := ex.submit(req)
	if err != nil {
		ex.metrics.orderRejected(label, err)
		ex.logger.Debug("order_rejected",
			zap.String("pair", req.Pair),
			zap.String("order", req.ID),
			zap.Stringer("kind", req.Kind),
			zap.Error(err))
		return nil, err
	}
	ex.metrics.latency(label, req.Kind, time.Since(start).Seconds())
	return out, nil
}

// pairLabel bounds the metric label space to registered pairs.
func (ex *Exchange) pairLabel(pair string) string {
	if ex.registry.Exists(pair) {
		return pair
	}
	return "unknown"
}

// publish reports committed trades. It runs under the pair lock so OnTrade
// sees a pair's trades in Seq order.
func (ex *Exchange) publish(trades []Trade) {
	for _, t := range trades {
		ex.metrics.trade(t)
		ex.logger.Debug("fill",
			zap.String("pair", t.Pair),
			zap.String("taker", t.TakerOrderID),
			zap.String("maker", t.MakerOrderID),
			zap.Stringer("price", t.Price),
			zap.Stringer("qty", t.Quantity))
		if ex.OnTrade != nil {
			ex.OnTrade(t)
		}
	}
}

func (ex *Exchange) submit(req OrderRequest) (*SubmitOutcome, error) {
	p, err := ex.registry.Get(req.Pair)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %s", ErrValidation, ErrUnknownPair, req.Pair)
	}
	if p.Status != market.Active {
		return nil, fmt.Errorf("%w: %w: %s", ErrValidation, ErrPairHalted, req.Pair)
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	reservation, err := reservationFor(req)
	if err != nil {
		return nil, err
	}

	var out *SubmitOutcome
	err = ex.withBook(req.Pair, func(b *orderbook.Book) error {
		if b.Has(req.ID) {
			return fmt.Errorf("%w: %w: %s", ErrValidation, ErrDuplicateOrder, req.ID)
		}

		asset := reservedAsset(p, req.Kind.Side())
		if err := ex.adapter.Reserve(asset, req.Owner, reservation); err != nil {
			return err
		}

		pl, err := planFills(b, req, reservation)
		if err != nil {
			ex.adapter.Release(asset, req.Owner, reservation)
			return err
		}
		if err := b.Stats().CheckVolume(ex.Epoch(), pl.filled); err != nil {
			ex.adapter.Release(asset, req.Owner, reservation)
			return fmt.Errorf("%w: statistics: %v", ErrArithmeticOverflow, err)
		}

		if err := ex.adapter.SettleBatch(legs(p, req, pl)); err != nil {
			ex.adapter.Release(asset, req.Owner, reservation)
			ex.logger.Warn("settlement_failed",
				zap.String("pair", p.Symbol),
				zap.String("order", req.ID),
				zap.Int("legs", len(pl.fills)),
				zap.Error(err))
			return err
		}

		out = ex.commit(b, p, req, pl)
		if out.Released.GreaterThan(fixed.Zero) {
			ex.adapter.Release(asset, req.Owner, out.Released)
		}
		ex.metrics.bookState(b)
		ex.publish(out.Trades)
		return nil
	})
	return out, err
}

func validate(req OrderRequest) error {
	if req.ID == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidOrderID)
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: %w: %d", ErrValidation, ErrUnknownKind, req.Kind)
	}
	switch req.Kind {
	case orderbook.BidLimit, orderbook.AskLimit:
		if req.Price.IsZero() {
			return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidPrice)
		}
		if req.Quantity.IsZero() {
			return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidQuantity)
		}
		if isDust(req.Price, req.Quantity) {
			return fmt.Errorf("%w: %w: %s x %s", ErrValidation, ErrNotionalTooSmall, req.Price, req.Quantity)
		}
	case orderbook.AskMarket:
		if req.Quantity.IsZero() {
			return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidQuantity)
		}
	case orderbook.BidMarket:
		if req.SpendBudget.IsZero() {
			return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidBudget)
		}
	}
	return nil
}

// isDust reports whether qty at price is worth less than one quote unit.
// Such a quantity can never trade, so it is never left resting.
func isDust(price, qty fixed.Amount) bool {
	n, err := price.Mul(qty)
	return err == nil && n.IsZero()
}

// reservationFor is the amount the taker must hold before matching: quote
// for bids, base for asks.
func reservationFor(req OrderRequest) (fixed.Amount, error) {
	switch req.Kind {
	case orderbook.BidLimit:
		amt, err := req.Price.Mul(req.Quantity)
		if err != nil {
			return fixed.Zero, fmt.Errorf("%w: %s x %s: %v", ErrArithmeticOverflow, req.Price, req.Quantity, err)
		}
		return amt, nil
	case orderbook.BidMarket:
		return req.SpendBudget, nil
	default:
		return req.Quantity, nil
	}
}

func reservedAsset(p market.Pair, side orderbook.Side) string {
	if side == orderbook.Bid {
		return p.QuoteAsset
	}
	return p.BaseAsset
}

// crosses reports whether a taker limit reaches the maker price.
func crosses(req OrderRequest, makerPrice fixed.Amount) bool {
	switch req.Kind {
	case orderbook.BidLimit:
		return makerPrice.LessOrEqual(req.Price)
	case orderbook.AskLimit:
		return makerPrice.GreaterOrEqual(req.Price)
	default:
		return true
	}
}

// planFills walks the opposite side best price first, FIFO within a level,
// without mutating the book.
func planFills(b *orderbook.Book, req OrderRequest, reservation fixed.Amount) (*plan, error) {
	pl := &plan{
		remaining:    req.Quantity,
		reservedLeft: reservation,
		budgetLeft:   req.SpendBudget,
	}
	capped := req.Kind != orderbook.BidMarket || !req.Quantity.IsZero()

	var (
		err  error
		stop bool
	)
	overflow := func(what string, e error) bool {
		err = fmt.Errorf("%w: %s: %v", ErrArithmeticOverflow, what, e)
		return false
	}

	b.Opposite(req.Kind.Side()).Ascend(func(lvl *orderbook.PriceLevel) bool {
		if !crosses(req, lvl.Price) {
			return false
		}
		lvl.Each(func(m *orderbook.Order) bool {
			tq := m.Quantity
			if capped {
				tq = fixed.Min(pl.remaining, m.Quantity)
			}
			if req.Kind == orderbook.BidMarket {
				affordable, e := pl.budgetLeft.Div(lvl.Price)
				if e != nil {
					return overflow("affordable quantity", e)
				}
				tq = fixed.Min(tq, affordable)
			}
			if tq.IsZero() {
				stop = true
				return false
			}

			quote, e := lvl.Price.Mul(tq)
			if e != nil {
				return overflow("trade notional", e)
			}
			if quote.IsZero() {
				// Base would move without payment.
				pl.dust = true
				stop = true
				return false
			}

			f := fill{maker: m, qty: tq, quote: quote, makerDone: tq.Equal(m.Quantity)}

			// Maker reservation: a bid maker reserved at its own price, which
			// is the execution price; an ask maker reserved base.
			switch {
			case f.makerDone:
				f.makerRelease = m.Reserved
			case m.Side() == orderbook.Bid:
				f.makerRelease = fixed.Min(quote, m.Reserved)
			default:
				f.makerRelease = fixed.Min(tq, m.Reserved)
			}

			// Taker reservation.
			switch req.Kind {
			case orderbook.BidLimit:
				if tq.Equal(pl.remaining) {
					f.takerRelease = pl.reservedLeft
				} else if f.takerRelease, e = req.Price.Mul(tq); e != nil {
					return overflow("taker release", e)
				}
			case orderbook.BidMarket:
				f.takerRelease = quote
			default:
				f.takerRelease = tq
			}
			if f.takerRelease.GreaterThan(pl.reservedLeft) {
				err = fmt.Errorf("%w: fill against %s needs %s, %s reserved", ErrArithmeticOverflow, m.ID, f.takerRelease, pl.reservedLeft)
				return false
			}

			pl.reservedLeft, _ = pl.reservedLeft.Sub(f.takerRelease)
			if pl.filled, e = pl.filled.Add(tq); e != nil {
				return overflow("filled quantity", e)
			}
			if capped {
				pl.remaining, _ = pl.remaining.Sub(tq)
			}
			if req.Kind == orderbook.BidMarket {
				pl.budgetLeft, _ = pl.budgetLeft.Sub(quote)
			}
			pl.fills = append(pl.fills, f)

			if !f.makerDone || (capped && pl.remaining.IsZero()) {
				stop = true
				return false
			}
			return true
		})
		return !stop && err == nil
	})
	if err != nil {
		return nil, err
	}
	return pl, nil
}

// legs turns planned fills into settlement legs.
func legs(p market.Pair, req OrderRequest, pl *plan) []settlement.Leg {
	out := make([]settlement.Leg, 0, len(pl.fills))
	for _, f := range pl.fills {
		leg := settlement.Leg{
			Pair:         p.Symbol,
			BaseAsset:    p.BaseAsset,
			QuoteAsset:   p.QuoteAsset,
			MakerOrderID: f.maker.ID,
			TakerOrderID: req.ID,
			Price:        f.maker.Price,
			Quantity:     f.qty,
			QuoteAmount:  f.quote,
		}
		if req.Kind.Side() == orderbook.Bid {
			leg.Buyer, leg.Seller = req.Owner, f.maker.Owner
			leg.BuyerRelease, leg.SellerRelease = f.takerRelease, f.makerRelease
		} else {
			leg.Buyer, leg.Seller = f.maker.Owner, req.Owner
			leg.BuyerRelease, leg.SellerRelease = f.makerRelease, f.takerRelease
		}
		out = append(out, leg)
	}
	return out
}

// commit applies a settled plan to the book. It cannot fail: every amount
// was computed during planning.
func (ex *Exchange) commit(b *orderbook.Book, p market.Pair, req OrderRequest, pl *plan) *SubmitOutcome {
	epoch := ex.Epoch()
	side := req.Kind.Side()
	trades := make([]Trade, 0, len(pl.fills))

	for _, f := range pl.fills {
		m := f.maker
		if f.makerDone {
			if popped := b.PopBest(side.Opposite()); popped != m {
				ex.logger.Error("commit_head_mismatch", zap.String("pair", b.Pair()), zap.String("planned", m.ID), zap.Bool("popped_nil", popped == nil))
			}
		} else {
			m.Quantity, _ = m.Quantity.Sub(f.qty)
			m.Reserved, _ = m.Reserved.Sub(f.makerRelease)
			if isDust(m.Price, m.Quantity) {
				ex.dropDustMaker(b, p, m)
			}
		}

		t := Trade{
			Seq:          b.NextSeq(),
			Pair:         b.Pair(),
			Epoch:        epoch,
			MakerOrderID: m.ID,
			TakerOrderID: req.ID,
			Maker:        m.Owner,
			Taker:        req.Owner,
			TakerSide:    side,
			Price:        m.Price,
			Quantity:     f.qty,
			QuoteAmount:  f.quote,
		}
		if err := b.Stats().RecordTrade(epoch, t.Price, t.Quantity); err != nil {
			ex.logger.Error("stats_record_failed", zap.String("pair", b.Pair()), zap.Uint64("epoch", epoch), zap.Error(err))
		}
		trades = append(trades, t)
	}

	out := &SubmitOutcome{
		OrderID:   req.ID,
		Trades:    trades,
		Filled:    pl.filled,
		Remaining: pl.remaining,
	}

	switch {
	case !req.Kind.IsMarket() && !pl.remaining.IsZero() && (pl.dust || isDust(req.Price, pl.remaining)):
		// The remainder could only rest crossed or never trade.
		out.Released = pl.reservedLeft
		out.State = Exhausted
	case !req.Kind.IsMarket() && !pl.remaining.IsZero():
		o := &orderbook.Order{
			ID:       req.ID,
			Pair:     b.Pair(),
			Kind:     req.Kind,
			Owner:    req.Owner,
			Price:    req.Price,
			Quantity: pl.remaining,
			Reserved: pl.reservedLeft,
			Seq:      b.NextSeq(),
		}
		if err := b.Insert(o); err != nil {
			// Duplicates were rejected under the same lock.
			ex.logger.Error("rest_failed", zap.String("pair", b.Pair()), zap.String("order", req.ID), zap.Error(err))
			out.Released = pl.reservedLeft
			out.State = Exhausted
			return out
		}
		out.State = Resting
		out.RestingID = o.ID
	case req.Kind == orderbook.BidMarket:
		out.Released = pl.reservedLeft
		out.State = Exhausted
		if pl.budgetLeft.IsZero() || (!req.Quantity.IsZero() && pl.remaining.IsZero()) {
			out.State = FullyFilled
		}
	default:
		out.Released = pl.reservedLeft
		out.State = FullyFilled
		if !pl.remaining.IsZero() {
			out.State = Exhausted
		}
	}
	return out
}

// dropDustMaker cancels a partially filled maker whose remainder is too
// small to ever trade and returns its reservation.
func (ex *Exchange) dropDustMaker(b *orderbook.Book, p market.Pair, m *orderbook.Order) {
	b.Remove(m.ID)
	ex.adapter.Release(reservedAsset(p, m.Side()), m.Owner, m.Reserved)
	ex.logger.Debug("dust_remainder_cancelled",
		zap.String("pair", b.Pair()),
		zap.String("order", m.ID),
		zap.Stringer("qty", m.Quantity),
		zap.Stringer("released", m.Reserved))
}
