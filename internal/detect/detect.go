// Package detect is the boundary to the object-detection model. Inference
// runs in an external sidecar; this package only ships image bytes across and
// interprets the results.
package detect

import "context"

// Object is one detected object with its model confidence.
type Object struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of one inference call.
type Result struct {
	Objects []Object `json:"objects"`
}

// Total returns the number of detected objects.
func (r Result) Total() int { return len(r.Objects) }

// Names returns the detected object names in model order.
func (r Result) Names() []string {
	names := make([]string, 0, len(r.Objects))
	for _, o := range r.Objects {
		names = append(names, o.Name)
	}
	return names
}

// Detector is the inference collaborator consumed by the HTTP layer.
type Detector interface {
	// Detect runs the model on raw image bytes.
	Detect(ctx context.Context, image []byte) (Result, error)
	// Annotate runs the model and returns the input image with bounding
	// boxes drawn on, as JPEG bytes, together with the detections.
	Annotate(ctx context.Context, image []byte) (Result, []byte, error)
}
