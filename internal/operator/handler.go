// Package operator is the event dispatch runtime. A Dispatcher watches one
// custom resource, turns the changes it sees into lifecycle events and hands
// them to a Handler, one resource at a time.
package operator

import (
	"context"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
)

// DefaultFinalizer is held on every resource until its deletion is handled
const DefaultFinalizer = "freqtrade-operator/finalizer"

// LastHandledAnnotation stores the spec the last create or update was
// handled for. Its absence means the resource has not been created yet.
const LastHandledAnnotation = freqv1.GroupName + "/last-handled-configuration"

// Event is what a handler gets to see of a resource
type Event struct {
	// Key is namespace/name
	Key    string
	Object *unstructured.Unstructured
	// Old carries the last handled spec. It is only set for updates.
	Old *unstructured.Unstructured
	// Owner is the controller reference to put on objects created for
	// the resource
	Owner metav1.OwnerReference
}

// Outcome is merged into the status of the resource
type Outcome struct {
	Message string
	APIPort string
	URL     string
}

// Handler reacts to the lifecycle events of one kind of resource.
// Create and Update classify their failures with Permanent and Temporary.
type Handler interface {
	Create(ctx context.Context, ev *Event) (Outcome, error)
	Update(ctx context.Context, ev *Event) (Outcome, error)
	Delete(ctx context.Context, ev *Event) (Outcome, error)
	StatusChanged(ctx context.Context, ev *Event, old freqv1.Phase, new freqv1.Phase)
}

// Settings are the startup settings of a dispatcher
type Settings struct {
	Finalizer string
	// Namespace restricts the watch to one namespace, empty means all
	Namespace    string
	Workers      int
	ResyncPeriod time.Duration
}

// DefaultSettings returns the settings used when no flags are given
func DefaultSettings() Settings {
	return Settings{
		Finalizer:    DefaultFinalizer,
		Workers:      2,
		ResyncPeriod: 30 * time.Second,
	}
}
