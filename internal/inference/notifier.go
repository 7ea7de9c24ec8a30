package inference

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

const (
	DemoModelDir   = "default_model"
	camTypeRTSP    = "rtsp"
	defaultTimeout = 10 * time.Second
	deployTimeout  = 60 * time.Second
)

type RetrainParameters struct {
	ConfidenceMin int
	ConfidenceMax int
	MaxImages     int
}

// Deployment is the set of updates pushed to the inference module after a model
// is ready. Empty fields are not pushed. Parts are always pushed.
type Deployment struct {
	CameraSource string
	ModelURI     string
	ModelDir     string
	Parts        []string
	Retrain      *RetrainParameters
}

// Notifier pushes configuration to the edge inference module. Pushes are best
// effort: failures are reported to the caller but never retried.
type Notifier struct {
	baseURL    string
	httpClient *http.Client
	wg         sync.WaitGroup
	log        *zap.SugaredLogger
}

func NewNotifier(address string, timeout time.Duration) *Notifier {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}
	return &Notifier{
		baseURL: strings.TrimSuffix(address, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: zap.S().Named("inference"),
	}
}

func (n *Notifier) URL() string {
	return n.baseURL
}

func (n *Notifier) UpdateCam(ctx context.Context, source string) error {
	q := url.Values{}
	q.Set("cam_type", camTypeRTSP)
	q.Set("cam_source", source)
	return n.get(ctx, "/update_cam", q)
}

func (n *Notifier) UpdateModelURI(ctx context.Context, uri string) error {
	q := url.Values{}
	q.Set("model_uri", uri)
	return n.get(ctx, "/update_model", q)
}

func (n *Notifier) UpdateModelDir(ctx context.Context, dir string) error {
	q := url.Values{}
	q.Set("model_dir", dir)
	return n.get(ctx, "/update_model", q)
}

func (n *Notifier) UpdateParts(ctx context.Context, parts []string) error {
	q := url.Values{}
	for _, p := range parts {
		q.Add("parts", p)
	}
	return n.get(ctx, "/update_parts", q)
}

func (n *Notifier) UpdateRetrainParameters(ctx context.Context, params RetrainParameters) error {
	q := url.Values{}
	q.Set("confidence_min", strconv.Itoa(params.ConfidenceMin))
	q.Set("confidence_max", strconv.Itoa(params.ConfidenceMax))
	q.Set("max_images", strconv.Itoa(params.MaxImages))
	return n.get(ctx, "/update_retrain_parameters", q)
}

func (n *Notifier) UpdateProbThreshold(ctx context.Context, threshold int) error {
	q := url.Values{}
	q.Set("prob_threshold", strconv.Itoa(threshold))
	return n.get(ctx, "/update_prob_threshold", q)
}

// Deploy pushes every non empty field of d in order camera, model, parts,
// retrain parameters. A failing push does not stop the following ones.
func (n *Notifier) Deploy(ctx context.Context, d Deployment) error {
	errs := []error{}

	if d.CameraSource != "" {
		if err := n.UpdateCam(ctx, d.CameraSource); err != nil {
			errs = append(errs, err)
		}
	}

	switch {
	case d.ModelURI != "":
		if err := n.UpdateModelURI(ctx, d.ModelURI); err != nil {
			errs = append(errs, err)
		}
	case d.ModelDir != "":
		if err := n.UpdateModelDir(ctx, d.ModelDir); err != nil {
			errs = append(errs, err)
		}
	}

	if err := n.UpdateParts(ctx, d.Parts); err != nil {
		errs = append(errs, err)
	}

	if d.Retrain != nil {
		if err := n.UpdateRetrainParameters(ctx, *d.Retrain); err != nil {
			errs = append(errs, err)
		}
	}

	return utilerrors.NewAggregate(errs)
}

// DeployAsync runs Deploy in the background. The caller does not wait for it;
// Wait blocks until every pending push has finished.
func (n *Notifier) DeployAsync(d Deployment) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), deployTimeout)
		defer cancel()

		if err := n.Deploy(ctx, d); err != nil {
			n.log.Warnw("failed to push deployment to inference module", "url", n.baseURL, "error", err)
			return
		}
		n.log.Infow("deployment pushed to inference module", "model_uri", d.ModelURI, "model_dir", d.ModelDir, "parts", d.Parts)
	}()
}

func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) get(ctx context.Context, path string, query url.Values) error {
	u := n.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call inference module %s: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Drain body to enable connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference module %s returned status %d", path, resp.StatusCode)
	}
	return nil
}
