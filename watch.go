package roiplanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/biotinker/roiplanner/octomap"
	viewplanner "github.com/biotinker/roiplanner/view_planner"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/spatialmath"
)

// Watch polls the camera every ScanPeriod and integrates each scan into the
// workspace until ctx is cancelled. Scan errors are logged and polling continues.
func Watch(ctx context.Context, p *Planner) error {
	p.logger.Infof("Watching camera every %v", p.cfg.ScanPeriod)
	ticker := p.clk.Ticker(p.cfg.ScanPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := p.scanOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warnf("Scan failed: %v", err)
		}
	}
}

// scanOnce takes one camera scan. It reports whether the scan was inserted;
// the settings may skip it while the arm moves or when nothing moved since
// the last insert.
func (p *Planner) scanOnce(ctx context.Context) (bool, error) {
	s := p.pc.Settings()
	if !s.InsertScanWhileMoving && p.hw.Moving() {
		p.logger.Debug("Skipping scan while moving")
		return false, nil
	}
	if !s.InsertScanIfNotMoved && p.ws.ScanSinceMove() {
		p.logger.Debug("Skipping scan, sensor has not moved")
		return false, nil
	}

	cloud, err := p.hw.NextPointCloud(ctx)
	if err != nil {
		return false, fmt.Errorf("camera: %w", err)
	}
	camPose, err := p.hw.CameraPose(ctx)
	if err != nil {
		return false, err
	}
	cloud = downsamplePointCloud(cloud, p.cfg.ScanMaxPoints, p.logger)

	cls, err := p.classifier.Classify(ctx, cloud)
	if err != nil {
		return false, fmt.Errorf("classify: %w", err)
	}
	scan := octomap.Scan{
		Origin:    camPose.Point().Mul(1 / mmPerMeter),
		Points:    toWorldMeters(camPose, cls.Background),
		ROIPoints: toWorldMeters(camPose, cls.ROI),
	}
	stats := p.ws.InsertScan(scan, s.SensorMinRange, s.SensorMaxRange)
	n := p.scans.Add(1)
	p.logger.Debugf("Scan %d: %d points, %d fruit, %d free / %d occupied / %d ROI voxels",
		n, len(cls.Points), len(cls.Fruits), stats.Free, stats.Occupied, stats.ROI)

	if s.RecordMapUpdates {
		if err := p.recordScan(n, camPose, cloud, s); err != nil {
			p.logger.Warnf("Failed to record scan %d: %v", n, err)
		}
	}
	return true, nil
}

// recordScan saves the world-frame scan cloud next to the other run outputs.
func (p *Planner) recordScan(n int64, camPose spatialmath.Pose, cloud pointcloud.PointCloud, s viewplanner.Settings) error {
	dir := filepath.Join(p.cfg.OutputDir, "scans")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create scan dir: %w", err)
	}
	world := pointcloud.NewBasicPointCloud(cloud.Size())
	if err := pointcloud.ApplyOffset(cloud, camPose, world); err != nil {
		return fmt.Errorf("transform scan: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_scan_%04d.pcd", p.runID, n))
	if err := savePointCloudToPCD(world, path); err != nil {
		return err
	}
	if info, err := os.Stat(path); err == nil {
		p.logger.Debugf("Saved scan %d to %s (%s, mode %s)", n, path, humanize.Bytes(uint64(info.Size())), s.Mode)
	}
	return nil
}
