package vega

import (
	"github.com/go-gl/mathgl/mgl32"
)

// ProjectionKind tags the closed set of projection variants a Projection can
// hold.
type ProjectionKind int

const (
	ProjectionPerspective ProjectionKind = iota
	ProjectionOrthographic
)

// PerspectiveProjection holds perspective parameters. FOVY is in radians.
type PerspectiveProjection struct {
	FOVY   float32
	Aspect float32
	Near   float32
	Far    float32
}

// OrthographicProjection holds orthographic view-volume bounds.
type OrthographicProjection struct {
	Left   float32
	Right  float32
	Bottom float32
	Top    float32
	Near   float32
	Far    float32
}

// Projection is a tagged projection variant. The matrix is cached and only
// recomputed on read after a parameter change, never eagerly on write.
//
// The computed matrix targets vulkan clip space: Y is flipped relative to
// what mgl32 produces for OpenGL.
type Projection struct {
	kind   ProjectionKind
	persp  PerspectiveProjection
	ortho  OrthographicProjection
	matrix mgl32.Mat4
	dirty  bool
}

func NewPerspectiveProjection(p PerspectiveProjection) *Projection {
	return &Projection{kind: ProjectionPerspective, persp: p, dirty: true}
}

func NewOrthographicProjection(o OrthographicProjection) *Projection {
	return &Projection{kind: ProjectionOrthographic, ortho: o, dirty: true}
}

func (p *Projection) Kind() ProjectionKind {
	return p.kind
}

// Dirty reports whether the cached matrix is stale.
func (p *Projection) Dirty() bool {
	return p.dirty
}

// Perspective returns the perspective parameters, and false if this is not a
// perspective projection.
func (p *Projection) Perspective() (PerspectiveProjection, bool) {
	if p.kind != ProjectionPerspective {
		return PerspectiveProjection{}, false
	}
	return p.persp, true
}

// Orthographic returns the orthographic parameters, and false if this is not
// an orthographic projection.
func (p *Projection) Orthographic() (OrthographicProjection, bool) {
	if p.kind != ProjectionOrthographic {
		return OrthographicProjection{}, false
	}
	return p.ortho, true
}

// SetPerspective switches the projection to the given perspective parameters
// and invalidates the cached matrix.
func (p *Projection) SetPerspective(persp PerspectiveProjection) {
	p.kind = ProjectionPerspective
	p.persp = persp
	p.dirty = true
}

// SetOrthographic switches the projection to the given orthographic
// parameters and invalidates the cached matrix.
func (p *Projection) SetOrthographic(ortho OrthographicProjection) {
	p.kind = ProjectionOrthographic
	p.ortho = ortho
	p.dirty = true
}

// Matrix returns the projection matrix, recomputing it if a parameter
// changed since the last read.
func (p *Projection) Matrix() mgl32.Mat4 {
	if p.dirty {
		switch p.kind {
		case ProjectionPerspective:
			p.matrix = mgl32.Perspective(p.persp.FOVY, p.persp.Aspect, p.persp.Near, p.persp.Far)
		case ProjectionOrthographic:
			o := p.ortho
			p.matrix = mgl32.Ortho(o.Left, o.Right, o.Bottom, o.Top, o.Near, o.Far)
		}
		// GL to vulkan clip space
		p.matrix[5] *= -1
		p.dirty = false
	}
	return p.matrix
}

// Camera pairs a view transform with a Projection. Both matrices are cached
// with the same invalidate-on-write, recompute-on-read discipline.
type Camera struct {
	eye    mgl32.Vec3
	center mgl32.Vec3
	up     mgl32.Vec3

	view      mgl32.Mat4
	viewDirty bool

	Projection *Projection
}

func NewCamera(eye, center, up mgl32.Vec3, proj *Projection) *Camera {
	return &Camera{
		eye:        eye,
		center:     center,
		up:         up,
		viewDirty:  true,
		Projection: proj,
	}
}

func (c *Camera) Eye() mgl32.Vec3 {
	return c.eye
}

// LookAt repositions the camera and invalidates the cached view matrix.
func (c *Camera) LookAt(eye, center, up mgl32.Vec3) {
	c.eye = eye
	c.center = center
	c.up = up
	c.viewDirty = true
}

// View returns the view matrix, recomputing it if the camera moved since the
// last read.
func (c *Camera) View() mgl32.Mat4 {
	if c.viewDirty {
		c.view = mgl32.LookAtV(c.eye, c.center, c.up)
		c.viewDirty = false
	}
	return c.view
}

// ViewProjection returns projection * view.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	return c.Projection.Matrix().Mul4(c.View())
}
