package roidetect

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/pointcloud"
)

// plantScene builds a cloud with a green leaf wall and two red fruit.
func plantScene(t *testing.T) pointcloud.PointCloud {
	t.Helper()
	cloud := pointcloud.NewBasicEmpty()
	//nolint:gosec
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 600; i++ {
		pt := r3.Vector{X: rng.Float64()*400 - 200, Y: rng.Float64()*400 - 200, Z: 600 + rng.Float64()*4}
		//nolint:errcheck
		cloud.Set(pt, greenPoint)
	}
	addSphere(cloud, r3.Vector{X: -80, Y: 0, Z: 450}, 35, 400, 0, redPoint)
	addSphere(cloud, r3.Vector{X: 90, Y: 40, Z: 480}, 30, 400, 0, redPoint)
	// Beyond the depth limit.
	addSphere(cloud, r3.Vector{X: 0, Y: 0, Z: 1500}, 30, 100, 0, redPoint)
	return cloud
}

// sceneConfig widens the cluster radius to the point spacing of plantScene.
func sceneConfig() *Config {
	cfg := DefaultConfig()
	cfg.Cluster.RadiusMm = 20
	return &cfg
}

func TestRadiusClustering_TwoClusters(t *testing.T) {
	cloud := pointcloud.NewBasicEmpty()
	//nolint:gosec
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		cloud.Set(r3.Vector{X: rng.Float64()*10 - 5, Y: rng.Float64()*10 - 5, Z: rng.Float64()*10 - 5}, redPoint) //nolint:errcheck
	}
	for i := 0; i < 100; i++ {
		cloud.Set(r3.Vector{X: 100 + rng.Float64()*10, Y: 100 + rng.Float64()*10, Z: 100 + rng.Float64()*10}, redPoint) //nolint:errcheck
	}
	// Small cluster (should be pruned).
	for i := 0; i < 5; i++ {
		cloud.Set(r3.Vector{X: 200 + rng.Float64()*2, Y: 200, Z: 200}, redPoint) //nolint:errcheck
	}

	clusters, err := radiusClustering(cloud, 15.0, 20)
	if err != nil {
		t.Fatalf("radiusClustering failed: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	for i, c := range clusters {
		t.Logf("cluster %d: %d points", i, c.Size())
		if c.Size() != 100 {
			t.Errorf("cluster %d has %d points, want 100", i, c.Size())
		}
	}
}

func TestClassify_PlantScene(t *testing.T) {
	cloud := plantScene(t)
	res, err := NewClassifier(sceneConfig()).Classify(context.Background(), cloud)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	t.Logf("points=%d roi=%d fruits=%d", len(res.Points), len(res.ROI), len(res.Fruits))

	if len(res.Points) != 1400 {
		t.Errorf("expected 1400 in-range points, got %d", len(res.Points))
	}
	if len(res.Fruits) != 2 || len(res.ROI) != 800 {
		t.Errorf("expected 2 fruit with 800 points, got %d with %d", len(res.Fruits), len(res.ROI))
	}
	if len(res.Background) != 600 {
		t.Errorf("expected 600 background points, got %d", len(res.Background))
	}
	for _, p := range res.ROI {
		if p.Z > 600 {
			t.Errorf("leaf point %v classified as fruit", p)
		}
	}
}

func TestClassify_VerifySpheres(t *testing.T) {
	cloud := plantScene(t)
	// A flat red patch is fruit-colored but not round.
	//nolint:gosec
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 1000; i++ {
		//nolint:errcheck
		cloud.Set(r3.Vector{X: 100 + rng.Float64()*150, Y: -300 + rng.Float64()*150, Z: 500}, redPoint)
	}

	cfg := sceneConfig()
	res, err := NewClassifier(cfg).Classify(context.Background(), cloud)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Fruits) != 3 {
		t.Fatalf("without verification expected 3 clusters, got %d", len(res.Fruits))
	}

	cfg.Cluster.VerifySpheres = true
	res, err = NewClassifier(cfg).Classify(context.Background(), cloud)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Fruits) != 2 {
		t.Fatalf("with verification expected 2 fruit, got %d", len(res.Fruits))
	}
	for i, f := range res.Fruits {
		if f.Sphere == nil {
			t.Fatalf("fruit %d has no sphere", i)
		}
		t.Logf("fruit %d: center %v radius %.1f", i, f.Sphere.Center, f.Sphere.Radius)
	}
}

func TestClassify_Errors(t *testing.T) {
	c := NewClassifier(nil)
	if _, err := c.Classify(context.Background(), nil); !errors.Is(err, ErrNilPointCloud) {
		t.Errorf("expected ErrNilPointCloud, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Classify(ctx, plantScene(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
