package controller

import (
	"context"
	"fmt"
	"strconv"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
	"github.com/freqtrade-operator/freqtrade-operator/internal/botconfig"
	"github.com/freqtrade-operator/freqtrade-operator/internal/operator"
	"github.com/freqtrade-operator/freqtrade-operator/internal/resources"
	"github.com/freqtrade-operator/freqtrade-operator/internal/secrets"
)

// UpdateRetryDelay is how long a failed update waits before it is retried
const UpdateRetryDelay = 60 * time.Second

// BotHandler reconciles FreqtradeBot resources. It keeps no state between
// calls, the dispatcher serializes all events of one bot.
type BotHandler struct {
	clientset kubernetes.Interface
	dynamic   dynamic.Interface
}

// NewBotHandler creates a handler using clientset for core objects and
// dynamicClient for the CNPG database
func NewBotHandler(clientset kubernetes.Interface, dynamicClient dynamic.Interface) *BotHandler {
	return &BotHandler{
		clientset: clientset,
		dynamic:   dynamicClient,
	}
}

// Create generates the credentials of a new bot and creates all its
// objects. Every failure is permanent, since most of them come from a bad
// spec. Partially created objects are left to the garbage collector.
func (h *BotHandler) Create(ctx context.Context, ev *operator.Event) (operator.Outcome, error) {
	bot, err := freqv1.BotFromUnstructured(ev.Object)
	if err != nil {
		return operator.Outcome{}, operator.Permanent(err)
	}
	klog.Infof("Creating FreqtradeBot %s/%s", bot.Namespace, bot.Name)
	if bot.Spec.DryRun {
		return operator.Outcome{Message: fmt.Sprintf("Dry run: FreqtradeBot %s validated", bot.Name)}, nil
	}
	logSSHKeyConflicts(bot)

	creds, err := secrets.NewCredentials()
	if err != nil {
		return operator.Outcome{}, operator.Permanent(err)
	}
	port := resources.AllocatePort(bot.Name)

	secret := resources.APISecret(bot, creds, ev.Owner)
	_, err = h.clientset.CoreV1().Secrets(bot.Namespace).Create(ctx, secret, metav1.CreateOptions{})
	if err = ignoreExisting(err, "Secret", secret.Name); err != nil {
		return operator.Outcome{}, operator.Permanent(fmt.Errorf("could not create secret %s: %w", secret.Name, err))
	}
	dbURL, err := h.provisionDatabase(ctx, bot, ev.Owner)
	if err != nil {
		return operator.Outcome{}, operator.Permanent(err)
	}
	graph, err := resources.Compose(bot, nil, port, dbURL, ev.Owner)
	if err != nil {
		return operator.Outcome{}, operator.Permanent(err)
	}
	if err := h.createWorkload(ctx, graph); err != nil {
		return operator.Outcome{}, operator.Permanent(err)
	}
	return operator.Outcome{
		Message: fmt.Sprintf("FreqtradeBot %s created", bot.Name),
		APIPort: strconv.Itoa(int(port)),
	}, nil
}

// createWorkload creates config map, claim, deployment and service in this
// order
func (h *BotHandler) createWorkload(ctx context.Context, graph *resources.Graph) error {
	cm := graph.ConfigMap
	_, err := h.clientset.CoreV1().ConfigMaps(cm.Namespace).Create(ctx, cm, metav1.CreateOptions{})
	if err = ignoreExisting(err, "ConfigMap", cm.Name); err != nil {
		return fmt.Errorf("could not create config map %s: %w", cm.Name, err)
	}
	if claim := graph.Claim; claim != nil {
		_, err = h.clientset.CoreV1().PersistentVolumeClaims(claim.Namespace).Create(ctx, claim, metav1.CreateOptions{})
		if err = ignoreExisting(err, "PersistentVolumeClaim", claim.Name); err != nil {
			return fmt.Errorf("could not create claim %s: %w", claim.Name, err)
		}
	}
	deployment := graph.Deployment
	_, err = h.clientset.AppsV1().Deployments(deployment.Namespace).Create(ctx, deployment, metav1.CreateOptions{})
	if err = ignoreExisting(err, "Deployment", deployment.Name); err != nil {
		return fmt.Errorf("could not create deployment %s: %w", deployment.Name, err)
	}
	service := graph.Service
	_, err = h.clientset.CoreV1().Services(service.Namespace).Create(ctx, service, metav1.CreateOptions{})
	if err = ignoreExisting(err, "Service", service.Name); err != nil {
		return fmt.Errorf("could not create service %s: %w", service.Name, err)
	}
	return nil
}

// provisionDatabase asks CNPG for the bot database and returns the URL the
// bot should use. Without the CNPG CRDs the bot falls back to SQLite.
func (h *BotHandler) provisionDatabase(ctx context.Context, bot *freqv1.FreqtradeBot, owner metav1.OwnerReference) (string, error) {
	if !bot.Spec.IsPostgreSQL() {
		return botconfig.SQLiteURL, nil
	}
	db := resources.Database(bot, owner)
	_, err := h.dynamic.Resource(resources.DatabaseResource).Namespace(bot.Namespace).Create(ctx, db, metav1.CreateOptions{})
	switch {
	case err == nil:
		klog.Infof("Created database %s for FreqtradeBot %s", db.GetName(), bot.Name)
	case apierrors.IsAlreadyExists(err):
		klog.Infof("Database %s does already exist, ignoring", db.GetName())
	case apierrors.IsNotFound(err):
		klog.Warningf("CloudNativePG is not installed, FreqtradeBot %s falls back to SQLite", bot.Name)
		return botconfig.SQLiteURL, nil
	default:
		return "", fmt.Errorf("could not create database %s: %w", db.GetName(), err)
	}
	return botconfig.DatabaseURL(bot.Name, bot.Namespace, &bot.Spec), nil
}

// resolveDatabase returns the database URL of an existing bot without
// provisioning anything. A bot whose database was never created keeps
// using SQLite.
func (h *BotHandler) resolveDatabase(ctx context.Context, bot *freqv1.FreqtradeBot) (string, error) {
	if !bot.Spec.IsPostgreSQL() {
		return botconfig.SQLiteURL, nil
	}
	name := resources.DatabaseObjectName(bot.Name)
	_, err := h.dynamic.Resource(resources.DatabaseResource).Namespace(bot.Namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return botconfig.SQLiteURL, nil
		}
		return "", fmt.Errorf("could not get database %s: %w", name, err)
	}
	return botconfig.DatabaseURL(bot.Name, bot.Namespace, &bot.Spec), nil
}

// Update re-renders the configuration and the deployment and replaces both.
// Credentials and the claim are left alone. Failures are retried after
// UpdateRetryDelay.
func (h *BotHandler) Update(ctx context.Context, ev *operator.Event) (operator.Outcome, error) {
	bot, err := freqv1.BotFromUnstructured(ev.Object)
	if err != nil {
		return operator.Outcome{}, operator.Temporary(err, UpdateRetryDelay)
	}
	klog.Infof("Updating FreqtradeBot %s/%s", bot.Namespace, bot.Name)
	if bot.Spec.DryRun {
		return operator.Outcome{Message: fmt.Sprintf("Dry run: FreqtradeBot %s validated", bot.Name)}, nil
	}
	// nothing exists yet for a bot leaving dry run
	if ev.Old != nil {
		if old, err := freqv1.BotFromUnstructured(ev.Old); err == nil && old.Spec.DryRun {
			return h.Create(ctx, ev)
		}
	}
	logSSHKeyConflicts(bot)

	port := resources.AllocatePort(bot.Name)
	dbURL, err := h.resolveDatabase(ctx, bot)
	if err != nil {
		return operator.Outcome{}, operator.Temporary(err, UpdateRetryDelay)
	}
	graph, err := resources.Compose(bot, nil, port, dbURL, ev.Owner)
	if err != nil {
		return operator.Outcome{}, operator.Temporary(err, UpdateRetryDelay)
	}
	_, err = h.clientset.CoreV1().ConfigMaps(bot.Namespace).Update(ctx, graph.ConfigMap, metav1.UpdateOptions{})
	if err != nil {
		return operator.Outcome{}, operator.Temporary(fmt.Errorf("could not replace config map %s: %w", graph.ConfigMap.Name, err), UpdateRetryDelay)
	}
	_, err = h.clientset.AppsV1().Deployments(bot.Namespace).Update(ctx, graph.Deployment, metav1.UpdateOptions{})
	if err != nil {
		return operator.Outcome{}, operator.Temporary(fmt.Errorf("could not replace deployment %s: %w", graph.Deployment.Name, err), UpdateRetryDelay)
	}
	return operator.Outcome{
		Message: fmt.Sprintf("FreqtradeBot %s updated", bot.Name),
		APIPort: strconv.Itoa(int(port)),
	}, nil
}

// Delete only reports. The owned objects are removed by the garbage
// collector through their owner references.
func (h *BotHandler) Delete(ctx context.Context, ev *operator.Event) (operator.Outcome, error) {
	klog.Infof("Deleting FreqtradeBot %s", ev.Key)
	return operator.Outcome{Message: fmt.Sprintf("FreqtradeBot %s deleted", ev.Object.GetName())}, nil
}

// StatusChanged logs phase transitions
func (h *BotHandler) StatusChanged(ctx context.Context, ev *operator.Event, old freqv1.Phase, new freqv1.Phase) {
	klog.Infof("FreqtradeBot %s changed phase from %q to %q", ev.Key, old, new)
}

func logSSHKeyConflicts(bot *freqv1.FreqtradeBot) {
	for _, strategy := range resources.SSHKeyConflicts(bot.Spec.Strategies) {
		klog.Warningf("FreqtradeBot %s: only one SSH key can be mounted, strategy %s uses the key of the first git strategy", bot.Name, strategy)
	}
}

// ignoreExisting treats a duplicate as success, so that a repeated create
// does not fail on the objects that already made it
func ignoreExisting(err error, kind string, name string) error {
	if apierrors.IsAlreadyExists(err) {
		klog.Infof("%s %s does already exist, ignoring", kind, name)
		return nil
	}
	return err
}
