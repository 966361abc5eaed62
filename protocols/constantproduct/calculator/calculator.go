package calculator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

// MinimumLiquidity is subtracted from the first mint of every pool.
const MinimumLiquidity = 1000

var (
	minimumLiquidity = uint256.NewInt(MinimumLiquidity)

	// ErrInvalidAmount is returned when an amount is nil or zero where a positive value is required.
	ErrInvalidAmount = errors.New("amount must be non-nil and positive")
	// ErrAmbiguousDirection is returned when not exactly one swap input is nonzero.
	ErrAmbiguousDirection = errors.New("exactly one input amount must be nonzero")
	// ErrInsufficientLiquidity is returned when an input is not strictly below the same-side reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
	// ErrBelowMinimumLiquidity is returned when a first deposit cannot cover MinimumLiquidity.
	ErrBelowMinimumLiquidity = errors.New("initial liquidity does not exceed the minimum")
	// ErrOverflow is returned when an intermediate product or sum exceeds 256 bits.
	ErrOverflow = errors.New("uint256 overflow")
	// ErrInvalidState is returned for internal calculation errors, like division by zero.
	ErrInvalidState = errors.New("invalid internal state")
)

// Reserves is the state a pool prices against. K is the invariant captured at
// the last liquidity change and held fixed across swaps.
type Reserves struct {
	A *uint256.Int
	B *uint256.Int
	K *uint256.Int
}

// SwapResult is the outcome of a simulated swap. Exactly one Out amount is nonzero.
type SwapResult struct {
	AmountAOut *uint256.Int
	AmountBOut *uint256.Int
	Reserves   Reserves
}

// Calculator holds reusable scratch values to avoid allocations during calculations.
// Instances are NOT safe for concurrent use and are managed by calculatorPool.
type Calculator struct {
	newReserve uint256.Int
	quotient   uint256.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return new(Calculator)
	},
}

// GetAmountOut prices a fee-less constant-product trade:
// out = reserveOut - floor(k / (reserveIn+amountIn)). A trade that would leave
// reserveOut at zero fails with ErrInsufficientLiquidity.
func GetAmountOut(amountIn, reserveIn, reserveOut, k *uint256.Int) (*uint256.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountIn, reserveIn, reserveOut, k)
}

// SimulateSwap prices a trade against r without mutating it. Exactly one of
// amountAIn and amountBIn must be nonzero.
func SimulateSwap(amountAIn, amountBIn *uint256.Int, r Reserves) (SwapResult, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.simulateSwap(amountAIn, amountBIn, r)
}

func (c *Calculator) getAmountOut(amountIn, reserveIn, reserveOut, k *uint256.Int) (*uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return nil, ErrInvalidAmount
	}
	if reserveIn == nil || reserveOut == nil || k == nil {
		return nil, fmt.Errorf("%w: nil reserve", ErrInvalidState)
	}
	if !amountIn.Lt(reserveIn) {
		return nil, fmt.Errorf("%w: amountIn (%s) is >= reserveIn (%s)", ErrInsufficientLiquidity, amountIn.Dec(), reserveIn.Dec())
	}
	if _, overflow := c.newReserve.AddOverflow(reserveIn, amountIn); overflow {
		return nil, fmt.Errorf("%w: input reserve", ErrOverflow)
	}

	// reserveIn > amountIn > 0, so the divisor is never zero.
	c.quotient.Div(k, &c.newReserve)
	if c.quotient.IsZero() {
		// the output would drain the whole reserve
		return nil, fmt.Errorf("%w: amountIn (%s) would empty reserveOut (%s)", ErrInsufficientLiquidity, amountIn.Dec(), reserveOut.Dec())
	}
	if c.quotient.Gt(reserveOut) {
		return nil, fmt.Errorf("%w: quotient exceeds output reserve", ErrInvalidState)
	}
	return new(uint256.Int).Sub(reserveOut, &c.quotient), nil
}

func (c *Calculator) simulateSwap(amountAIn, amountBIn *uint256.Int, r Reserves) (SwapResult, error) {
	aIn := amountAIn != nil && !amountAIn.IsZero()
	bIn := amountBIn != nil && !amountBIn.IsZero()
	if aIn == bIn {
		return SwapResult{}, ErrAmbiguousDirection
	}

	result := SwapResult{AmountAOut: new(uint256.Int), AmountBOut: new(uint256.Int)}
	if aIn {
		out, err := c.getAmountOut(amountAIn, r.A, r.B, r.K)
		if err != nil {
			return SwapResult{}, err
		}
		result.AmountBOut = out
		result.Reserves = Reserves{
			A: new(uint256.Int).Add(r.A, amountAIn),
			B: new(uint256.Int).Sub(r.B, out),
			K: r.K.Clone(),
		}
		return result, nil
	}

	out, err := c.getAmountOut(amountBIn, r.B, r.A, r.K)
	if err != nil {
		return SwapResult{}, err
	}
	result.AmountAOut = out
	result.Reserves = Reserves{
		A: new(uint256.Int).Sub(r.A, out),
		B: new(uint256.Int).Add(r.B, amountBIn),
		K: r.K.Clone(),
	}
	return result, nil
}

// Invariant returns a*b, the product a pool holds fixed between liquidity changes.
func Invariant(a, b *uint256.Int) (*uint256.Int, error) {
	k, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: reserve product", ErrOverflow)
	}
	return k, nil
}

// InitialLiquidity returns floor(sqrt(amountA*amountB)) - MinimumLiquidity.
func InitialLiquidity(amountA, amountB *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(amountA, amountB)
	if overflow {
		return nil, fmt.Errorf("%w: deposit product", ErrOverflow)
	}
	root := Sqrt(product)
	if !root.Gt(minimumLiquidity) {
		return nil, fmt.Errorf("%w: sqrt(%s * %s) = %s", ErrBelowMinimumLiquidity, amountA.Dec(), amountB.Dec(), root.Dec())
	}
	return root.Sub(root, minimumLiquidity), nil
}

// ProportionalLiquidity returns the liquidity each side of a deposit would mint
// against an existing supply: amountX * totalSupply / reserveX.
func ProportionalLiquidity(amountA, amountB *uint256.Int, r Reserves, totalSupply *uint256.Int) (fromA, fromB *uint256.Int, err error) {
	if r.A.IsZero() || r.B.IsZero() {
		return nil, nil, fmt.Errorf("%w: zero reserve with outstanding supply", ErrInvalidState)
	}
	fromA, err = mulDiv(amountA, totalSupply, r.A)
	if err != nil {
		return nil, nil, err
	}
	fromB, err = mulDiv(amountB, totalSupply, r.B)
	if err != nil {
		return nil, nil, err
	}
	return fromA, fromB, nil
}

// ProportionalAmounts returns the reserves owed for burning liquidity:
// reserveX * liquidity / totalSupply.
func ProportionalAmounts(liquidity *uint256.Int, r Reserves, totalSupply *uint256.Int) (amountA, amountB *uint256.Int, err error) {
	if totalSupply.IsZero() {
		return nil, nil, fmt.Errorf("%w: zero total supply", ErrInvalidState)
	}
	amountA, err = mulDiv(r.A, liquidity, totalSupply)
	if err != nil {
		return nil, nil, err
	}
	amountB, err = mulDiv(r.B, liquidity, totalSupply)
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z.Div(z, d), nil
}

// Sqrt returns floor(sqrt(y)) using the Babylonian method.
func Sqrt(y *uint256.Int) *uint256.Int {
	z := new(uint256.Int)
	if y.GtUint64(3) {
		z.Set(y)
		x := new(uint256.Int).Rsh(y, 1)
		x.AddUint64(x, 1)
		q := new(uint256.Int)
		for x.Lt(z) {
			z.Set(x)
			q.Div(y, x)
			x.Add(q, x)
			x.Rsh(x, 1)
		}
	} else if !y.IsZero() {
		z.SetOne()
	}
	return z
}
