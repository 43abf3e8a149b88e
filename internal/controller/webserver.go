package controller

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
	"github.com/freqtrade-operator/freqtrade-operator/internal/operator"
	"github.com/freqtrade-operator/freqtrade-operator/internal/resources"
)

// WebserverHandler reconciles FreqtradeWebserver resources
type WebserverHandler struct {
	clientset kubernetes.Interface
}

// NewWebserverHandler creates a new handler for FreqUI webservers
func NewWebserverHandler(clientset kubernetes.Interface) *WebserverHandler {
	return &WebserverHandler{clientset: clientset}
}

// Create creates deployment, service and ingress of the webserver
func (h *WebserverHandler) Create(ctx context.Context, ev *operator.Event) (operator.Outcome, error) {
	ws, err := freqv1.WebserverFromUnstructured(ev.Object)
	if err != nil {
		return operator.Outcome{}, operator.Permanent(err)
	}
	klog.Infof("Creating FreqtradeWebserver %s/%s", ws.Namespace, ws.Name)

	deployment := resources.WebserverDeployment(ws, ev.Owner)
	_, err = h.clientset.AppsV1().Deployments(ws.Namespace).Create(ctx, deployment, metav1.CreateOptions{})
	if err = ignoreExisting(err, "Deployment", deployment.Name); err != nil {
		return operator.Outcome{}, operator.Permanent(fmt.Errorf("could not create deployment %s: %w", deployment.Name, err))
	}
	service := resources.WebserverService(ws, ev.Owner)
	_, err = h.clientset.CoreV1().Services(ws.Namespace).Create(ctx, service, metav1.CreateOptions{})
	if err = ignoreExisting(err, "Service", service.Name); err != nil {
		return operator.Outcome{}, operator.Permanent(fmt.Errorf("could not create service %s: %w", service.Name, err))
	}
	ingress := resources.WebserverIngress(ws, ev.Owner)
	_, err = h.clientset.NetworkingV1().Ingresses(ws.Namespace).Create(ctx, ingress, metav1.CreateOptions{})
	if err = ignoreExisting(err, "Ingress", ingress.Name); err != nil {
		return operator.Outcome{}, operator.Permanent(fmt.Errorf("could not create ingress %s: %w", ingress.Name, err))
	}
	return operator.Outcome{
		Message: fmt.Sprintf("FreqtradeWebserver %s created", ws.Name),
		URL:     resources.WebserverURL(ws),
	}, nil
}

// Update replaces deployment and ingress, picking up new resources, host
// and TLS settings
func (h *WebserverHandler) Update(ctx context.Context, ev *operator.Event) (operator.Outcome, error) {
	ws, err := freqv1.WebserverFromUnstructured(ev.Object)
	if err != nil {
		return operator.Outcome{}, operator.Temporary(err, UpdateRetryDelay)
	}
	klog.Infof("Updating FreqtradeWebserver %s/%s", ws.Namespace, ws.Name)

	deployment := resources.WebserverDeployment(ws, ev.Owner)
	if _, err := h.clientset.AppsV1().Deployments(ws.Namespace).Update(ctx, deployment, metav1.UpdateOptions{}); err != nil {
		return operator.Outcome{}, operator.Temporary(fmt.Errorf("could not replace deployment %s: %w", deployment.Name, err), UpdateRetryDelay)
	}
	ingress := resources.WebserverIngress(ws, ev.Owner)
	if _, err := h.clientset.NetworkingV1().Ingresses(ws.Namespace).Update(ctx, ingress, metav1.UpdateOptions{}); err != nil {
		return operator.Outcome{}, operator.Temporary(fmt.Errorf("could not replace ingress %s: %w", ingress.Name, err), UpdateRetryDelay)
	}
	return operator.Outcome{
		Message: fmt.Sprintf("FreqtradeWebserver %s updated", ws.Name),
		URL:     resources.WebserverURL(ws),
	}, nil
}

// Delete only reports, the garbage collector removes the owned objects
func (h *WebserverHandler) Delete(ctx context.Context, ev *operator.Event) (operator.Outcome, error) {
	klog.Infof("Deleting FreqtradeWebserver %s", ev.Key)
	return operator.Outcome{Message: fmt.Sprintf("FreqtradeWebserver %s deleted", ev.Object.GetName())}, nil
}

// StatusChanged logs phase transitions
func (h *WebserverHandler) StatusChanged(ctx context.Context, ev *operator.Event, old freqv1.Phase, new freqv1.Phase) {
	klog.V(2).Infof("FreqtradeWebserver %s changed phase from %q to %q", ev.Key, old, new)
}
