package committee

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// weightsFile is the on-disk shape of the provider weight vector.
type weightsFile struct {
	Weights map[string]float64 `yaml:"weights"`
}

// Weights holds the per-provider weight vector, normalized so the values
// sum to the number of active providers. Reads are concurrent; the watcher
// is the single writer and swaps the whole map.
type Weights struct {
	mu      sync.RWMutex
	values  map[string]float64
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// LoadWeights reads the weight vector from a YAML file and normalizes it.
// An empty path yields uniform weights resolved lazily via Get.
func LoadWeights(path string) (*Weights, error) {
	w := &Weights{
		values: map[string]float64{},
		logger: slog.Default().With("component", "committee.weights"),
	}
	if path == "" {
		return w, nil
	}
	if err := w.reload(path); err != nil {
		return nil, err
	}
	return w, nil
}

// Get returns a provider's weight, defaulting to 1.0 for providers absent
// from the vector.
func (w *Weights) Get(provider string) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if v, ok := w.values[provider]; ok {
		return v
	}
	return 1.0
}

// Set replaces the full vector and renormalizes. The calibration routine is
// the expected caller.
func (w *Weights) Set(values map[string]float64) {
	normalized := normalizeWeights(values)
	w.mu.Lock()
	w.values = normalized
	w.mu.Unlock()
}

// Snapshot returns a copy of the current vector.
func (w *Weights) Snapshot() map[string]float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]float64, len(w.values))
	for k, v := range w.values {
		out[k] = v
	}
	return out
}

// Watch hot-reloads the vector when the file changes. Call Close to stop.
func (w *Weights) Watch(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create weights watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %q: %w", path, err)
	}
	w.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := w.reload(path); err != nil {
						w.logger.Error("weights reload failed", "path", path, "error", err)
					} else {
						w.logger.Info("weights reloaded", "path", path)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error("weights watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops the watcher if one is running.
func (w *Weights) Close() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Weights) reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read weights file %q: %w", path, err)
	}
	var file weightsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse weights file %q: %w", path, err)
	}
	for name, v := range file.Weights {
		if v < 0 {
			return fmt.Errorf("weights file %q: provider %q has negative weight", path, name)
		}
	}

	normalized := normalizeWeights(file.Weights)
	w.mu.Lock()
	w.values = normalized
	w.mu.Unlock()
	return nil
}

// normalizeWeights scales the vector so it sums to the number of providers.
func normalizeWeights(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	if len(values) == 0 {
		return out
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	if sum == 0 {
		for k := range values {
			out[k] = 1.0
		}
		return out
	}
	scale := float64(len(values)) / sum
	for k, v := range values {
		out[k] = v * scale
	}
	return out
}

// GoldenCase is one calibration example: an evidence pack plus the known
// correct mapping.
type GoldenCase struct {
	Pack     *Pack             `yaml:"pack"`
	Expected map[string]string `yaml:"expected"` // field -> column id ("" = null)
}

// Calibrate scores each provider against the golden set and returns a new
// normalized weight vector proportional to per-provider accuracy. Providers
// that error on every case keep a minimal weight rather than zero so a
// transient bad day cannot silence a vendor permanently.
func Calibrate(ctxProviders []Provider, results map[string][]*ProviderResult, golden []GoldenCase) map[string]float64 {
	const minWeight = 0.1

	accuracy := map[string]float64{}
	for _, p := range ctxProviders {
		runs := results[p.Name()]
		correct, total := 0, 0
		for i, g := range golden {
			if i >= len(runs) || runs[i] == nil {
				continue
			}
			for field, want := range g.Expected {
				total++
				m := findMapping(runs[i], field)
				if m == nil {
					continue
				}
				got := ""
				if m.SelectedColumnID != nil {
					got = *m.SelectedColumnID
				}
				if got == want {
					correct++
				}
			}
		}
		if total == 0 {
			accuracy[p.Name()] = minWeight
			continue
		}
		a := float64(correct) / float64(total)
		if a < minWeight {
			a = minWeight
		}
		accuracy[p.Name()] = a
	}
	return normalizeWeights(accuracy)
}
