// SPDX-License-Identifier: EPL-2.0

package ftc

import "sync"

// Adder holds a right-hand operand and replays the last sum on Bang,
// mirroring m5_ftc_add's secondary "time2" inlet and bare-bang replay.
type Adder struct {
	mu     sync.Mutex
	right  Code
	result Code
}

// NewAdder creates an Adder with the given initial right-hand operand.
func NewAdder(right Code) *Adder {
	return &Adder{right: right}
}

// SetRight replaces the right-hand operand without producing a result.
func (a *Adder) SetRight(right Code) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.right = right
}

// Add adds left to the stored right-hand operand and remembers the result.
func (a *Adder) Add(left Code) Code {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.result = Add(left, a.right)
	return a.result
}

// Bang re-emits the last computed sum.
func (a *Adder) Bang() Code {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

// Multiplier holds a scalar and replays the last product on Bang,
// mirroring m5_ftc_mult's float inlet.
type Multiplier struct {
	mu     sync.Mutex
	scalar float32
	result Code
}

// NewMultiplier creates a Multiplier with the given initial scalar.
func NewMultiplier(scalar float32) *Multiplier {
	return &Multiplier{scalar: scalar}
}

// SetScalar replaces the scalar operand.
func (m *Multiplier) SetScalar(scalar float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scalar = scalar
}

// Multiply computes floor(in * scalar) and remembers the result.
func (m *Multiplier) Multiply(in Code) Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = MultiplyByScalar(in, m.scalar)
	return m.result
}

// Bang re-emits the last computed product.
func (m *Multiplier) Bang() Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

// Comparer holds a right-hand operand and replays the last comparison on
// Bang, mirroring m5_ftc_compare's "right" inlet.
type Comparer struct {
	mu     sync.Mutex
	right  Code
	result int
}

// NewComparer creates a Comparer with the given initial right-hand operand.
func NewComparer(right Code) *Comparer {
	return &Comparer{right: right}
}

// SetRight replaces the right-hand operand.
func (c *Comparer) SetRight(right Code) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.right = right
}

// Compare compares left against the stored right-hand operand.
func (c *Comparer) Compare(left Code) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = Compare(left, c.right)
	return c.result
}

// Bang re-emits the last comparison result.
func (c *Comparer) Bang() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}
