package viz

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/choreo/internal/planner"
)

// Each cell is a braille glyph holding 2x4 dots:
// 1 4
// 2 5
// 3 6
// 7 8
var dotBits = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blankCell rune = 0x2800

// Canvas is a braille dot matrix of Width x Height cells, i.e. Width*2 by
// Height*4 dots.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, Grid: make([][]rune, h)}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Dots returns the canvas size in dots.
func (c *Canvas) Dots() (int, int) { return c.Width * 2, c.Height * 4 }

func (c *Canvas) cell(x, y int) (row, col int, bit rune, ok bool) {
	if x < 0 || y < 0 {
		return 0, 0, 0, false
	}
	row, col = y/4, x/2
	if col >= c.Width || row >= c.Height {
		return 0, 0, 0, false
	}
	return row, col, dotBits[y%4][x%2], true
}

// Set lights the dot at (x, y). Out-of-range dots are ignored.
func (c *Canvas) Set(x, y int) {
	if row, col, bit, ok := c.cell(x, y); ok {
		c.Grid[row][col] |= bit
	}
}

func (c *Canvas) Unset(x, y int) {
	if row, col, bit, ok := c.cell(x, y); ok {
		c.Grid[row][col] &^= bit
		c.Grid[row][col] |= blankCell
	}
}

// IsSet reports whether the dot at (x, y) is lit.
func (c *Canvas) IsSet(x, y int) bool {
	row, col, bit, ok := c.cell(x, y)
	return ok && c.Grid[row][col]&bit != 0
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blankCell
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx, dy := absInt(x1-x0), absInt(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx - dy
	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// DrawCircle outlines a circle of radius r dots around (cx, cy).
func (c *Canvas) DrawCircle(cx, cy, r int) {
	if r <= 0 {
		c.Set(cx, cy)
		return
	}
	steps := 8 * r
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		c.Set(cx+int(math.Round(float64(r)*math.Cos(a))), cy+int(math.Round(float64(r)*math.Sin(a))))
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// PlanView draws the workspace from above: obstacles, the current plan,
// the goal and body positions, all projected onto the XY plane.
type PlanView struct {
	canvas *Canvas
	bounds planner.Bounds
}

func NewPlanView(w, h int, bounds planner.Bounds) *PlanView {
	return &PlanView{canvas: NewCanvas(w, h), bounds: bounds}
}

func (v *PlanView) Canvas() *Canvas { return v.canvas }

// Project maps a world point to dot coordinates. Y grows upward on screen.
func (v *PlanView) Project(p r3.Vec) (int, int) {
	w, h := v.canvas.Dots()
	size := v.bounds.Size()
	if size.X <= 0 || size.Y <= 0 {
		return 0, 0
	}
	fx := (p.X - v.bounds.Min.X) / size.X
	fy := (p.Y - v.bounds.Min.Y) / size.Y
	x := int(math.Round(fx * float64(w-1)))
	y := int(math.Round((1 - fy) * float64(h-1)))
	return x, y
}

func (v *PlanView) scale(r float64) int {
	w, _ := v.canvas.Dots()
	size := v.bounds.Size()
	if size.X <= 0 {
		return 0
	}
	return int(math.Round(r / size.X * float64(w-1)))
}

// Render redraws the whole view.
func (v *PlanView) Render(obstacles []planner.Obstacle, path []r3.Vec, goal r3.Vec, bodies []r3.Vec) string {
	v.canvas.Clear()
	for _, o := range obstacles {
		x, y := v.Project(o.Center)
		v.canvas.DrawCircle(x, y, v.scale(o.Radius))
	}
	for i := 1; i < len(path); i++ {
		x0, y0 := v.Project(path[i-1])
		x1, y1 := v.Project(path[i])
		v.canvas.DrawLine(x0, y0, x1, y1)
	}
	gx, gy := v.Project(goal)
	v.canvas.DrawLine(gx-2, gy-2, gx+2, gy+2)
	v.canvas.DrawLine(gx-2, gy+2, gx+2, gy-2)
	for _, b := range bodies {
		x, y := v.Project(b)
		v.canvas.DrawCircle(x, y, 1)
		v.canvas.Set(x, y)
	}
	return v.canvas.String()
}
