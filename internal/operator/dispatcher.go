package operator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utiljson "k8s.io/apimachinery/pkg/util/json"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
	"github.com/freqtrade-operator/freqtrade-operator/internal/metrics"
)

// Event names used in logs and metrics
const (
	eventCreate = "create"
	eventUpdate = "update"
	eventDelete = "delete"
)

// errBackingOff is returned by sync while a failed spec waits for its retry
var errBackingOff = errors.New("retry already scheduled")

// retry is the spec a handler failed on and the earliest time it is tried
// again
type retry struct {
	spec      string
	notBefore time.Time
}

// Dispatcher runs the lifecycle handlers of one custom resource. Keys are
// taken from a rate limited work queue which never hands out the same key to
// two workers at a time, so all events of one resource are serialized.
type Dispatcher struct {
	resource       schema.GroupVersionResource
	kind           schema.GroupVersionKind
	handler        Handler
	client         dynamic.Interface
	settings       Settings
	recorder       *metrics.Recorder
	factory        dynamicinformer.DynamicSharedInformerFactory
	informer       cache.SharedIndexInformer
	lister         cache.GenericLister
	informerSynced func() bool
	rateLimiter    workqueue.TypedRateLimiter[string]
	workqueue      workqueue.TypedRateLimitingInterface[string]
	// last phase seen per key, to detect status changes
	phasesLock sync.Mutex
	phases     map[string]freqv1.Phase
	// pending retries per key. Status writes of a failed pass wake the key
	// up again, these make sure the handler is not called before the delay.
	retriesLock sync.Mutex
	retries     map[string]retry
}

// NewDispatcher creates a dispatcher for resource, handing events to handler
func NewDispatcher(client dynamic.Interface,
	resource schema.GroupVersionResource,
	kind schema.GroupVersionKind,
	handler Handler,
	recorder *metrics.Recorder,
	settings Settings) (*Dispatcher, error) {
	if settings.Finalizer == "" {
		settings.Finalizer = DefaultFinalizer
	}
	if settings.Workers < 1 {
		settings.Workers = 1
	}
	factory := dynamicinformer.NewFilteredDynamicSharedInformerFactory(client, settings.ResyncPeriod, settings.Namespace, nil)
	informer := factory.ForResource(resource)
	rateLimiter := workqueue.DefaultTypedControllerRateLimiter[string]()
	d := &Dispatcher{
		resource:       resource,
		kind:           kind,
		handler:        handler,
		client:         client,
		settings:       settings,
		recorder:       recorder,
		factory:        factory,
		informer:       informer.Informer(),
		lister:         informer.Lister(),
		informerSynced: informer.Informer().HasSynced,
		rateLimiter:    rateLimiter,
		workqueue: workqueue.NewTypedRateLimitingQueueWithConfig(
			rateLimiter,
			workqueue.TypedRateLimitingQueueConfig[string]{Name: resource.Resource},
		),
		phases:  make(map[string]freqv1.Phase),
		retries: make(map[string]retry),
	}
	_, err := d.informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: d.enqueue,
		UpdateFunc: func(old interface{}, new interface{}) {
			if needsSync(old, new) {
				d.enqueue(new)
			}
		},
		DeleteFunc: d.enqueue,
	})
	if err != nil {
		return nil, fmt.Errorf("could not register event handler for %s: %w", resource.Resource, err)
	}
	return d, nil
}

// SetInformerSynced replaces the function used to check whether the cache
// is synced
func (d *Dispatcher) SetInformerSynced(synced func() bool) {
	d.informerSynced = synced
}

// Indexer gives access to the informer cache
func (d *Dispatcher) Indexer() cache.Indexer {
	return d.informer.GetIndexer()
}

// enqueue converts a resource into a namespace / name string and puts
// that into the queue
func (d *Dispatcher) enqueue(obj interface{}) {
	key, err := cache.DeletionHandlingMetaNamespaceKeyFunc(obj)
	if err != nil {
		klog.Errorf("Could not extract name and namespace: %s", err)
		return
	}
	d.workqueue.Add(key)
}

// needsSync filters out updates that only touch the status message or
// other fields nothing reacts to. Resyncs, spec, metadata and phase changes
// pass.
func needsSync(old interface{}, new interface{}) bool {
	oldU, ok := old.(*unstructured.Unstructured)
	if !ok {
		return true
	}
	newU, ok := new.(*unstructured.Unstructured)
	if !ok {
		return true
	}
	if oldU.GetResourceVersion() == newU.GetResourceVersion() {
		return true
	}
	oldPhase, _, _ := unstructured.NestedString(oldU.Object, "status", "phase")
	newPhase, _, _ := unstructured.NestedString(newU.Object, "status", "phase")
	return oldPhase != newPhase ||
		oldU.GetGeneration() != newU.GetGeneration() ||
		!equality.Semantic.DeepEqual(oldU.Object["spec"], newU.Object["spec"]) ||
		!equality.Semantic.DeepEqual(oldU.GetAnnotations(), newU.GetAnnotations()) ||
		!equality.Semantic.DeepEqual(oldU.GetFinalizers(), newU.GetFinalizers()) ||
		!equality.Semantic.DeepEqual(oldU.GetDeletionTimestamp(), newU.GetDeletionTimestamp())
}

// Run starts the informer and the workers and blocks until ctx is done
func (d *Dispatcher) Run(ctx context.Context) error {
	defer utilruntime.HandleCrash()
	defer d.workqueue.ShutDown()

	d.factory.Start(ctx.Done())
	klog.Infof("Waiting for %s cache to sync", d.resource.Resource)
	if ok := cache.WaitForCacheSync(ctx.Done(), d.informerSynced); !ok {
		return fmt.Errorf("failed to wait for %s cache to sync", d.resource.Resource)
	}
	klog.Infof("Starting %d workers for %s", d.settings.Workers, d.resource.Resource)
	for i := 0; i < d.settings.Workers; i++ {
		go wait.UntilWithContext(ctx, d.worker, time.Second)
	}
	<-ctx.Done()
	klog.Infof("Stopping workers for %s", d.resource.Resource)
	return nil
}

func (d *Dispatcher) worker(ctx context.Context) {
	for d.processNextItem(ctx) {
	}
}

// processNextItem takes one key from the queue and decides, based on the
// outcome, whether and when the key comes back
func (d *Dispatcher) processNextItem(ctx context.Context) bool {
	key, shutdown := d.workqueue.Get()
	if shutdown {
		return false
	}
	defer d.workqueue.Done(key)

	err := d.sync(ctx, key)
	var temporary *TemporaryError
	switch {
	case err == nil:
		d.workqueue.Forget(key)
	case errors.Is(err, errBackingOff):
		klog.V(4).Infof("Skipping %s, waiting for scheduled retry", key)
	case errors.As(err, &temporary):
		klog.Warningf("Retrying %s in %s: %s", key, temporary.Delay, temporary.Err)
		d.workqueue.Forget(key)
		d.delayRetry(key, temporary.Delay)
		d.workqueue.AddAfter(key, temporary.Delay)
	default:
		delay := d.rateLimiter.When(key)
		klog.Errorf("Error handling %s, requeuing in %s: %s", key, delay, err)
		d.delayRetry(key, delay)
		d.workqueue.AddAfter(key, delay)
	}
	return true
}

// sync brings one resource forward by one step. Writes to the resource
// trigger another informer event, so each pass only does one lifecycle
// transition.
func (d *Dispatcher) sync(ctx context.Context, key string) error {
	namespace, name, err := cache.SplitMetaNamespaceKey(key)
	if err != nil {
		klog.Errorf("Could not split key %s into name and namespace", key)
		return nil
	}
	d.recorder.SetActive(d.resource.Resource, len(d.informer.GetStore().ListKeys()))
	obj, err := d.lister.ByNamespace(namespace).Get(name)
	if err != nil {
		if apierrors.IsNotFound(err) {
			klog.V(2).Infof("%s %s is gone", d.kind.Kind, key)
			d.forget(key)
			return nil
		}
		return err
	}
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		klog.Errorf("Got unexpected object of type %T for %s", obj, key)
		return nil
	}
	u = u.DeepCopy()
	ev := &Event{
		Key:    key,
		Object: u,
		Owner:  *metav1.NewControllerRef(u, d.kind),
	}

	if u.GetDeletionTimestamp() != nil {
		return d.handleDelete(ctx, ev)
	}
	if !hasFinalizer(u, d.settings.Finalizer) {
		klog.Infof("Adding finalizer to %s %s", d.kind.Kind, key)
		u.SetFinalizers(append(u.GetFinalizers(), d.settings.Finalizer))
		_, err := d.client.Resource(d.resource).Namespace(namespace).Update(ctx, u, metav1.UpdateOptions{})
		return err
	}

	d.observePhase(ctx, ev)

	spec, err := specOf(u)
	if err != nil {
		return err
	}
	last, handled := u.GetAnnotations()[LastHandledAnnotation]
	if (!handled || last != spec) && d.backingOff(key, spec) {
		return errBackingOff
	}
	switch {
	case !handled:
		return d.handleCreate(ctx, ev, spec)
	case last != spec:
		old, err := withSpec(u, last)
		if err != nil {
			return err
		}
		ev.Old = old
		return d.handleUpdate(ctx, ev, spec)
	}
	return nil
}

func (d *Dispatcher) handleCreate(ctx context.Context, ev *Event, spec string) error {
	klog.Infof("Handling creation of %s %s", d.kind.Kind, ev.Key)
	u, err := d.writeStatus(ctx, ev.Object, freqv1.PhaseCreating, Outcome{Message: "Creating resources"})
	if err != nil {
		return err
	}
	ev.Object = u
	start := time.Now()
	outcome, err := d.handler.Create(ctx, ev)
	d.recorder.Observe(d.resource.Resource, eventCreate, time.Since(start))
	if err == nil {
		d.recorder.Created(d.resource.Resource)
	}
	return d.finish(ctx, ev, eventCreate, spec, outcome, err)
}

func (d *Dispatcher) handleUpdate(ctx context.Context, ev *Event, spec string) error {
	klog.Infof("Handling update of %s %s", d.kind.Kind, ev.Key)
	u, err := d.writeStatus(ctx, ev.Object, freqv1.PhaseUpdating, Outcome{Message: "Updating resources"})
	if err != nil {
		return err
	}
	ev.Object = u
	start := time.Now()
	outcome, err := d.handler.Update(ctx, ev)
	d.recorder.Observe(d.resource.Resource, eventUpdate, time.Since(start))
	return d.finish(ctx, ev, eventUpdate, spec, outcome, err)
}

// finish records the result of a create or update. Success and permanent
// failures store the spec as handled, so the same spec is not handled again.
func (d *Dispatcher) finish(ctx context.Context, ev *Event, event string, spec string, outcome Outcome, err error) error {
	var permanent *PermanentError
	var temporary *TemporaryError
	switch {
	case err == nil:
		d.clearRetry(ev.Key)
		u, err := d.markHandled(ctx, ev.Object, spec)
		if err != nil {
			return err
		}
		_, err = d.writeStatus(ctx, u, freqv1.PhaseReady, outcome)
		return err
	case errors.As(err, &permanent):
		klog.Errorf("%s of %s %s failed permanently: %s", event, d.kind.Kind, ev.Key, permanent.Err)
		d.recorder.Error(d.resource.Resource, event, "permanent")
		d.clearRetry(ev.Key)
		u, markErr := d.markHandled(ctx, ev.Object, spec)
		if markErr != nil {
			return markErr
		}
		_, statusErr := d.writeStatus(ctx, u, freqv1.PhaseFailed, Outcome{Message: permanent.Err.Error()})
		return statusErr
	case errors.As(err, &temporary):
		d.recorder.Error(d.resource.Resource, event, "temporary")
		d.failedOn(ev.Key, spec)
		if _, statusErr := d.writeStatus(ctx, ev.Object, freqv1.PhaseError, Outcome{Message: temporary.Err.Error()}); statusErr != nil {
			klog.Errorf("Could not write status of %s: %s", ev.Key, statusErr)
		}
		return err
	default:
		d.recorder.Error(d.resource.Resource, event, "unknown")
		d.failedOn(ev.Key, spec)
		if _, statusErr := d.writeStatus(ctx, ev.Object, freqv1.PhaseError, Outcome{Message: err.Error()}); statusErr != nil {
			klog.Errorf("Could not write status of %s: %s", ev.Key, statusErr)
		}
		return err
	}
}

// handleDelete runs the delete handler once and then releases the
// finalizer. Owned objects are left to the garbage collector.
func (d *Dispatcher) handleDelete(ctx context.Context, ev *Event) error {
	u := ev.Object
	if !hasFinalizer(u, d.settings.Finalizer) {
		return nil
	}
	klog.Infof("Handling deletion of %s %s", d.kind.Kind, ev.Key)
	start := time.Now()
	outcome, err := d.handler.Delete(ctx, ev)
	d.recorder.Observe(d.resource.Resource, eventDelete, time.Since(start))
	if err != nil {
		d.recorder.Error(d.resource.Resource, eventDelete, "unknown")
		return err
	}
	klog.Infof("%s %s: %s", d.kind.Kind, ev.Key, outcome.Message)
	d.recorder.Deleted(d.resource.Resource)

	var finalizers []string
	for _, f := range u.GetFinalizers() {
		if f != d.settings.Finalizer {
			finalizers = append(finalizers, f)
		}
	}
	u.SetFinalizers(finalizers)
	_, err = d.client.Resource(d.resource).Namespace(u.GetNamespace()).Update(ctx, u, metav1.UpdateOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

// observePhase calls the status change handler if the phase differs from
// the one seen on the previous pass
func (d *Dispatcher) observePhase(ctx context.Context, ev *Event) {
	phase, _, _ := unstructured.NestedString(ev.Object.Object, "status", "phase")
	current := freqv1.Phase(phase)
	d.phasesLock.Lock()
	previous, seen := d.phases[ev.Key]
	d.phases[ev.Key] = current
	d.phasesLock.Unlock()
	if seen && previous != current {
		d.handler.StatusChanged(ctx, ev, previous, current)
	}
}

// forget drops all state kept for a resource that is gone
func (d *Dispatcher) forget(key string) {
	d.phasesLock.Lock()
	delete(d.phases, key)
	d.phasesLock.Unlock()
	d.clearRetry(key)
	d.workqueue.Forget(key)
}

// failedOn remembers the spec a handler failed on. The retry time is set
// by delayRetry once the delay is known.
func (d *Dispatcher) failedOn(key string, spec string) {
	d.retriesLock.Lock()
	defer d.retriesLock.Unlock()
	d.retries[key] = retry{spec: spec}
}

func (d *Dispatcher) delayRetry(key string, delay time.Duration) {
	d.retriesLock.Lock()
	defer d.retriesLock.Unlock()
	if r, ok := d.retries[key]; ok {
		r.notBefore = time.Now().Add(delay)
		d.retries[key] = r
	}
}

func (d *Dispatcher) clearRetry(key string) {
	d.retriesLock.Lock()
	defer d.retriesLock.Unlock()
	delete(d.retries, key)
}

// backingOff reports whether spec failed on the last pass and its retry
// delay has not passed yet. A changed spec is handled right away.
func (d *Dispatcher) backingOff(key string, spec string) bool {
	d.retriesLock.Lock()
	defer d.retriesLock.Unlock()
	r, ok := d.retries[key]
	return ok && r.spec == spec && time.Now().Before(r.notBefore)
}

func (d *Dispatcher) markHandled(ctx context.Context, u *unstructured.Unstructured, spec string) (*unstructured.Unstructured, error) {
	u = u.DeepCopy()
	annotations := u.GetAnnotations()
	if annotations == nil {
		annotations = make(map[string]string)
	}
	annotations[LastHandledAnnotation] = spec
	u.SetAnnotations(annotations)
	return d.client.Resource(d.resource).Namespace(u.GetNamespace()).Update(ctx, u, metav1.UpdateOptions{})
}

func (d *Dispatcher) writeStatus(ctx context.Context, u *unstructured.Unstructured, phase freqv1.Phase, outcome Outcome) (*unstructured.Unstructured, error) {
	u = u.DeepCopy()
	status, _, _ := unstructured.NestedMap(u.Object, "status")
	if status == nil {
		status = make(map[string]interface{})
	}
	status["phase"] = string(phase)
	status["message"] = outcome.Message
	status["observedGeneration"] = u.GetGeneration()
	if outcome.APIPort != "" {
		status["apiPort"] = outcome.APIPort
	}
	if outcome.URL != "" {
		status["url"] = outcome.URL
	}
	if err := unstructured.SetNestedMap(u.Object, status, "status"); err != nil {
		return nil, err
	}
	result, err := d.client.Resource(d.resource).Namespace(u.GetNamespace()).UpdateStatus(ctx, u, metav1.UpdateOptions{})
	if err != nil {
		return nil, fmt.Errorf("could not update status of %s/%s: %w", u.GetNamespace(), u.GetName(), err)
	}
	return result, nil
}

func hasFinalizer(u *unstructured.Unstructured, finalizer string) bool {
	for _, f := range u.GetFinalizers() {
		if f == finalizer {
			return true
		}
	}
	return false
}

// specOf serializes the spec of a resource. Maps are serialized with
// sorted keys, so equal specs give equal strings.
func specOf(u *unstructured.Unstructured) (string, error) {
	spec, err := json.Marshal(u.Object["spec"])
	if err != nil {
		return "", fmt.Errorf("could not serialize spec of %s/%s: %w", u.GetNamespace(), u.GetName(), err)
	}
	return string(spec), nil
}

// withSpec returns a copy of u carrying the given serialized spec
func withSpec(u *unstructured.Unstructured, spec string) (*unstructured.Unstructured, error) {
	var decoded interface{}
	if err := utiljson.Unmarshal([]byte(spec), &decoded); err != nil {
		return nil, fmt.Errorf("could not decode %s of %s/%s: %w", LastHandledAnnotation, u.GetNamespace(), u.GetName(), err)
	}
	old := u.DeepCopy()
	old.Object["spec"] = decoded
	return old, nil
}
