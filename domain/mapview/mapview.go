// Package mapview maintains the map display model: the tile style chosen
// at mount time, the single rover marker and the camera viewport.
package mapview

import (
	"context"
	"errors"
	"sync"

	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/state"
)

var (
	ErrNotMounted = errors.New("map is not mounted")
	ErrNoPosition = errors.New("no rover position yet")
)

// Options configures the map view.
type Options struct {
	TilesAvailable bool
	TileURL        string
	Attribution    string
	InitialZoom    float64
	FlyToZoom      float64
}

// View is the single writer of the map atoms.
type View struct {
	store  *state.Store
	opts   Options
	logger customlog.Logger

	mu            sync.Mutex
	style         *Style
	markerCreated int
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// New creates an unmounted view.
func New(store *state.Store, opts Options, logger customlog.Logger) *View {
	if opts.InitialZoom <= 0 {
		opts.InitialZoom = 15
	}
	if opts.FlyToZoom <= 0 {
		opts.FlyToZoom = 17
	}
	return &View{
		store:  store,
		opts:   opts,
		logger: logger.WithField("component", "map"),
	}
}

// Mount initializes the map once and starts following the rover position.
// Mounting an already mounted view does nothing.
func (v *View) Mount() {
	v.mu.Lock()
	if v.style != nil {
		v.mu.Unlock()
		return
	}
	if v.opts.TilesAvailable && v.opts.TileURL != "" {
		v.style = OnlineStyle(v.opts.TileURL, v.opts.Attribution)
	} else {
		v.style = GridOnlyStyle()
	}
	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	sub := v.store.Subscribe(state.TopicGPS, state.TopicRotationVector)
	v.wg.Add(1)
	v.mu.Unlock()

	v.store.MapViewport.Set(state.Viewport{Zoom: v.opts.InitialZoom})
	v.logger.Infof("Map mounted (online tiles: %v)", v.opts.TilesAvailable)
	v.applyPosition()

	go v.follow(ctx, sub)
}

// Unmount stops following and discards the map instance and its marker.
func (v *View) Unmount() {
	v.mu.Lock()
	cancel := v.cancel
	v.cancel = nil
	v.style = nil
	v.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	v.wg.Wait()
	v.store.MapMarker.Set(nil)
	v.logger.Infof("Map unmounted")
}

// Style returns the style chosen at mount time.
func (v *View) Style() (*Style, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.style == nil {
		return nil, ErrNotMounted
	}
	return v.style, nil
}

// MarkerCreations counts how many times a marker was created.
func (v *View) MarkerCreations() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.markerCreated
}

// FlyTo centers the camera on the marker at the fly-to zoom.
func (v *View) FlyTo() (state.Viewport, error) {
	v.mu.Lock()
	mounted := v.style != nil
	v.mu.Unlock()
	if !mounted {
		return state.Viewport{}, ErrNotMounted
	}
	m := v.store.MapMarker.Get()
	if m == nil {
		return state.Viewport{}, ErrNoPosition
	}
	vp := state.Viewport{
		Center: state.PathPoint{Latitude: m.Latitude, Longitude: m.Longitude},
		Zoom:   v.opts.FlyToZoom,
	}
	v.store.MapViewport.Set(vp)
	return vp, nil
}

func (v *View) follow(ctx context.Context, sub state.Subscription) {
	defer v.wg.Done()
	defer v.store.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub:
			if !ok {
				return
			}
			v.applyPosition()
		}
	}
}

// applyPosition creates the marker on the first fix and moves it afterwards.
// The heading is the rotation vector's z component; without one the marker
// is a dot.
func (v *View) applyPosition() {
	gps := v.store.GPS.Get()
	if gps == nil {
		return
	}
	marker := state.Marker{Latitude: gps.Latitude, Longitude: gps.Longitude, Style: state.MarkerDot}
	if rv := v.store.RotationVector.Get(); rv != nil {
		marker.Style = state.MarkerArrow
		marker.Rotation = rv.Z
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.style == nil {
		return
	}
	if v.store.MapMarker.Get() == nil {
		v.markerCreated++
		v.logger.Debugf("Marker created at %.6f,%.6f", marker.Latitude, marker.Longitude)
	}
	v.store.MapMarker.Set(&marker)
}
