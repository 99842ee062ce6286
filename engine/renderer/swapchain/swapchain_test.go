package swapchain

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver/drivertest"
)

func newSwapchain(t *testing.T, dev *drivertest.Device, extent driver.Extent2D) *Swapchain {
	t.Helper()
	sc, err := New(dev, extent, Config{FramesInFlight: 2, PresentMode: driver.PresentModeMailbox})
	if err != nil {
		t.Fatal(err)
	}
	return sc
}

func commandBuffer(t *testing.T, dev *drivertest.Device) driver.CommandBuffer {
	t.Helper()
	cmds, err := dev.AllocateCommandBuffers(1)
	if err != nil {
		t.Fatal(err)
	}
	return cmds[0]
}

func assertLive(t *testing.T, dev *drivertest.Device, kind string, want int) {
	t.Helper()
	if got := dev.Live(kind); got != want {
		t.Fatalf("live %s = %d, want %d", kind, got, want)
	}
}

func TestRecreateAtExtent(t *testing.T) {
	tests := []struct {
		name   string
		extent driver.Extent2D
		want   driver.Extent2D
	}{
		{"grow", driver.Extent2D{Width: 1920, Height: 1080}, driver.Extent2D{Width: 1920, Height: 1080}},
		{"shrink", driver.Extent2D{Width: 320, Height: 200}, driver.Extent2D{Width: 320, Height: 200}},
		{"clamped", driver.Extent2D{Width: 8000, Height: 100}, driver.Extent2D{Width: 4096, Height: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := drivertest.NewDevice()
			sc := newSwapchain(t, dev, driver.Extent2D{Width: 800, Height: 600})
			first := dev.Swapchains[0]
			pass := sc.RenderPass()
			slot := sc.Slot(0)
			var oldDepth []*drivertest.Image
			for i := 0; i < sc.ImageCount(); i++ {
				oldDepth = append(oldDepth, sc.DepthImage(uint32(i)).(*drivertest.Image))
			}

			if err := sc.Recreate(tt.extent); err != nil {
				t.Fatal(err)
			}

			if sc.Extent() != tt.want {
				t.Fatalf("extent %s, want %s", sc.Extent(), tt.want)
			}
			if sc.ImageCount() != 3 {
				t.Fatalf("image count %d, want min+1 = 3", sc.ImageCount())
			}
			for i := 0; i < sc.ImageCount(); i++ {
				fb := sc.Framebuffer(uint32(i))
				if fb.Extent() != tt.want {
					t.Fatalf("framebuffer %d extent %s", i, fb.Extent())
				}
				if fb.(*drivertest.Framebuffer).Destroyed() {
					t.Fatalf("framebuffer %d already destroyed", i)
				}
				depth := sc.DepthImage(uint32(i))
				if depth.Extent() != tt.want {
					t.Fatalf("depth image %d extent %s", i, depth.Extent())
				}
				if got := fb.(*drivertest.Framebuffer).Attachments[1]; got != depth.View() {
					t.Fatalf("framebuffer %d is not attached to its own depth image", i)
				}
				for j := 0; j < i; j++ {
					if sc.DepthImage(uint32(j)) == depth {
						t.Fatalf("images %d and %d share a depth attachment", j, i)
					}
				}
			}
			for i, d := range oldDepth {
				if !d.Destroyed() {
					t.Fatalf("old depth image %d not retired", i)
				}
			}

			second := dev.Swapchains[1]
			if second.Info.Old != first {
				t.Fatal("old swapchain was not handed to the new one")
			}
			if !first.Destroyed() {
				t.Fatal("old swapchain not retired")
			}
			if sc.RenderPass() != pass || sc.Slot(0) != slot {
				t.Fatal("render pass or frame slots were recreated")
			}

			// A colour view, a depth image with its view and a framebuffer per image.
			assertLive(t, dev, drivertest.KindSwapchain, 1)
			assertLive(t, dev, drivertest.KindImageView, 6)
			assertLive(t, dev, drivertest.KindImage, 3)
			assertLive(t, dev, drivertest.KindFramebuffer, 3)
			assertLive(t, dev, drivertest.KindRenderPass, 1)
			assertLive(t, dev, drivertest.KindFence, 2)
			assertLive(t, dev, drivertest.KindSemaphore, 4)
		})
	}
}

func TestRepeatedRecreateDoesNotLeak(t *testing.T) {
	dev := drivertest.NewDevice()
	sc := newSwapchain(t, dev, driver.Extent2D{Width: 800, Height: 600})
	for i := 1; i <= 20; i++ {
		if err := sc.Recreate(driver.Extent2D{Width: uint32(100 * i), Height: 100}); err != nil {
			t.Fatal(err)
		}
	}
	assertLive(t, dev, drivertest.KindSwapchain, 1)
	assertLive(t, dev, drivertest.KindImageView, 6)
	assertLive(t, dev, drivertest.KindImage, 3)
	assertLive(t, dev, drivertest.KindFramebuffer, 3)
	if dev.WaitIdles != 20 {
		t.Fatalf("expected a device wait per recreation, got %d", dev.WaitIdles)
	}

	sc.Destroy()
	for _, kind := range []string{
		drivertest.KindSwapchain, drivertest.KindImageView, drivertest.KindImage,
		drivertest.KindFramebuffer, drivertest.KindRenderPass, drivertest.KindFence, drivertest.KindSemaphore,
	} {
		assertLive(t, dev, kind, 0)
	}
}

func TestRecreateRejectsFormatChange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*drivertest.Device)
	}{
		{"colour", func(d *drivertest.Device) {
			d.Support.Formats = []driver.SurfaceFormat{{Format: driver.FormatB8G8R8A8Unorm, ColorSpace: driver.ColorSpaceSrgbNonlinear}}
		}},
		{"depth", func(d *drivertest.Device) {
			d.Depth = driver.FormatD24UnormS8Uint
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := drivertest.NewDevice()
			sc := newSwapchain(t, dev, driver.Extent2D{Width: 800, Height: 600})
			gen := sc.Generation()
			tt.mutate(dev)

			err := sc.Recreate(driver.Extent2D{Width: 1024, Height: 768})
			if !errors.Is(err, core.ErrSwapchainFormatChanged) {
				t.Fatalf("expected ErrSwapchainFormatChanged, got %v", err)
			}
			if sc.Generation() != gen || sc.Extent() != (driver.Extent2D{Width: 800, Height: 600}) {
				t.Fatal("failed recreation replaced the current images")
			}
			// Nothing from the rejected build survives.
			assertLive(t, dev, drivertest.KindSwapchain, 1)
			assertLive(t, dev, drivertest.KindImageView, 6)
			assertLive(t, dev, drivertest.KindImage, 3)
			assertLive(t, dev, drivertest.KindFramebuffer, 3)
		})
	}
}

func TestZeroExtentRejected(t *testing.T) {
	dev := drivertest.NewDevice()
	if _, err := New(dev, driver.Extent2D{Width: 0, Height: 600}, Config{}); !errors.Is(err, core.ErrZeroExtent) {
		t.Fatalf("New: expected ErrZeroExtent, got %v", err)
	}

	sc := newSwapchain(t, dev, driver.Extent2D{Width: 800, Height: 600})
	if err := sc.Recreate(driver.Extent2D{}); !errors.Is(err, core.ErrZeroExtent) {
		t.Fatalf("Recreate: expected ErrZeroExtent, got %v", err)
	}
	if len(dev.Swapchains) != 1 {
		t.Fatal("zero extent recreation built a swapchain")
	}

	// A minimized window can report a 0x0 surface while the window size is stale.
	dev.Support.Capabilities.CurrentExtent = driver.Extent2D{}
	dev.Support.Capabilities.MinImageExtent = driver.Extent2D{}
	if err := sc.Recreate(driver.Extent2D{Width: 640, Height: 480}); err != nil {
		t.Fatal(err)
	}
	if sc.Extent() != (driver.Extent2D{Width: 640, Height: 480}) {
		t.Fatalf("zero surface extent not replaced by the window extent: %s", sc.Extent())
	}
}

func TestAcquireSubmitOrder(t *testing.T) {
	dev := drivertest.NewDevice()
	sc := newSwapchain(t, dev, driver.Extent2D{Width: 800, Height: 600})
	cmd := commandBuffer(t, dev)
	slot := sc.Slot(1)
	fence := slot.InFlight.(*drivertest.Fence)

	idx, err := sc.Acquire(1)
	if err != nil {
		t.Fatal(err)
	}
	if sc.ImageOwner(idx) != nil {
		t.Fatal("fresh image already owned")
	}
	if err := sc.Submit(1, cmd, idx); err != nil {
		t.Fatal(err)
	}
	if sc.ImageOwner(idx) != slot.InFlight {
		t.Fatal("image owner is not the slot fence")
	}

	want := []string{"wait fence=", "acquire ", "submit ", "present "}
	if len(dev.Events) != len(want) {
		t.Fatalf("events %q", dev.Events)
	}
	for i, prefix := range want {
		if !strings.HasPrefix(dev.Events[i], prefix) {
			t.Fatalf("event %d = %q, want prefix %q", i, dev.Events[i], prefix)
		}
	}
	if dev.FenceWaits[0] != fence {
		t.Fatal("acquire waited on the wrong fence")
	}

	sub := dev.Submissions[0]
	if sub.Wait != slot.ImageAvailable || sub.Signal != slot.RenderFinished || sub.Fence != fence {
		t.Fatalf("submission used the wrong sync objects: %+v", sub)
	}
	if p := dev.Presents[0]; p.Wait != slot.RenderFinished || p.ImageIndex != idx {
		t.Fatalf("present not gated on render finished: %+v", p)
	}
}

func TestAcquireResults(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"success", nil, nil},
		{"suboptimal is success", driver.ErrSuboptimal, nil},
		{"out of date boots", driver.ErrOutOfDate, core.ErrSwapchainBooting},
		{"device lost is fatal", driver.ErrDeviceLost, driver.ErrDeviceLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := drivertest.NewDevice()
			sc := newSwapchain(t, dev, driver.Extent2D{Width: 800, Height: 600})
			dev.AcquireErrors = []error{tt.err}

			_, err := sc.Acquire(0)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPresentStaleBoots(t *testing.T) {
	for _, presentErr := range []error{driver.ErrOutOfDate, driver.ErrSuboptimal} {
		dev := drivertest.NewDevice()
		sc := newSwapchain(t, dev, driver.Extent2D{Width: 800, Height: 600})
		dev.PresentErrors = []error{presentErr}

		idx, err := sc.Acquire(0)
		if err != nil {
			t.Fatal(err)
		}
		if err := sc.Submit(0, commandBuffer(t, dev), idx); !errors.Is(err, core.ErrSwapchainBooting) {
			t.Fatalf("%v: expected ErrSwapchainBooting, got %v", presentErr, err)
		}
		if len(dev.Submissions) != 1 {
			t.Fatal("stale present must not undo the submission")
		}
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := driver.SurfaceFormat{Format: driver.FormatB8G8R8A8Srgb, ColorSpace: driver.ColorSpaceSrgbNonlinear}
	unorm := driver.SurfaceFormat{Format: driver.FormatB8G8R8A8Unorm, ColorSpace: driver.ColorSpaceSrgbNonlinear}
	other := driver.SurfaceFormat{Format: 37, ColorSpace: driver.ColorSpaceSrgbNonlinear}

	tests := []struct {
		name    string
		formats []driver.SurfaceFormat
		want    driver.SurfaceFormat
	}{
		{"srgb first", []driver.SurfaceFormat{other, unorm, srgb}, srgb},
		{"unorm fallback", []driver.SurfaceFormat{other, unorm}, unorm},
		{"first reported", []driver.SurfaceFormat{other}, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChooseSurfaceFormat(tt.formats); got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestChoosePresentMode(t *testing.T) {
	modes := []driver.PresentMode{driver.PresentModeFifo, driver.PresentModeMailbox}
	if got := ChoosePresentMode(modes, driver.PresentModeMailbox); got != driver.PresentModeMailbox {
		t.Fatalf("got %s", got)
	}
	if got := ChoosePresentMode(modes, driver.PresentModeImmediate); got != driver.PresentModeFifo {
		t.Fatalf("got %s, want fifo fallback", got)
	}
}

func TestChooseExtentAndImageCount(t *testing.T) {
	caps := driver.SurfaceCapabilities{
		MinImageCount:  2,
		MaxImageCount:  2,
		CurrentExtent:  driver.Extent2D{Width: 640, Height: 480},
		MinImageExtent: driver.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: driver.Extent2D{Width: 4096, Height: 4096},
	}
	if got := ChooseExtent(caps, driver.Extent2D{Width: 10, Height: 10}); got != caps.CurrentExtent {
		t.Fatalf("defined surface extent ignored: %s", got)
	}
	if got := ChooseImageCount(caps); got != 2 {
		t.Fatalf("image count %d not capped at max", got)
	}

	caps.CurrentExtent = driver.Extent2D{}
	if got := ChooseExtent(caps, driver.Extent2D{Width: 10, Height: 10}); got != (driver.Extent2D{Width: 10, Height: 10}) {
		t.Fatalf("zero surface extent should fall back to the window: %s", got)
	}
	if got := ChooseExtent(caps, driver.Extent2D{}); got != (driver.Extent2D{Width: 1, Height: 1}) {
		t.Fatalf("window extent not clamped to the minimum: %s", got)
	}

	caps.CurrentExtent = driver.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32}
	caps.MaxImageCount = 0
	if got := ChooseExtent(caps, driver.Extent2D{Width: 10, Height: 9000}); got != (driver.Extent2D{Width: 10, Height: 4096}) {
		t.Fatalf("window extent not clamped: %s", got)
	}
	if got := ChooseImageCount(caps); got != 3 {
		t.Fatalf("unbounded max should give min+1, got %d", got)
	}
}
