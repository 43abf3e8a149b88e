package resources

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	freqv1 "github.com/freqtrade-operator/freqtrade-operator/internal/apis/freqtrade/v1alpha1"
)

// Settings of the FreqUI webserver
const (
	WebserverApp   = "freqtrade-webserver"
	WebserverImage = "freqtradeorg/freqtrade:stable_freqaiui"
	webserverPort  = int32(80)
)

func webserverLabels(name string) map[string]string {
	return map[string]string{
		AppLabel:   WebserverApp,
		"instance": name,
	}
}

// WebserverDeployment runs FreqUI
func WebserverDeployment(ws *freqv1.FreqtradeWebserver, owner metav1.OwnerReference) *appsv1.Deployment {
	container := corev1.Container{
		Name:  "frequi",
		Image: WebserverImage,
		Ports: []corev1.ContainerPort{
			{Name: "http", ContainerPort: webserverPort},
		},
	}
	if ws.Spec.Resources != nil {
		container.Resources = *ws.Spec.Resources.DeepCopy()
	}
	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Deployment",
			APIVersion: "apps/v1",
		},
		ObjectMeta: objectMeta(ws.Name+"-frequi", ws.Namespace, webserverLabels(ws.Name), owner),
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(int32(1)),
			Selector: &metav1.LabelSelector{MatchLabels: webserverLabels(ws.Name)},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: webserverLabels(ws.Name)},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{container},
				},
			},
		},
	}
}

// WebserverService exposes FreqUI to the ingress
func WebserverService(ws *freqv1.FreqtradeWebserver, owner metav1.OwnerReference) *corev1.Service {
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Service",
			APIVersion: "v1",
		},
		ObjectMeta: objectMeta(ws.Name, ws.Namespace, webserverLabels(ws.Name), owner),
		Spec: corev1.ServiceSpec{
			Selector: webserverLabels(ws.Name),
			Ports: []corev1.ServicePort{
				{
					Name:       "http",
					Port:       webserverPort,
					TargetPort: intstr.FromInt32(webserverPort),
				},
			},
		},
	}
}

// WebserverIngress routes the configured host to FreqUI
func WebserverIngress(ws *freqv1.FreqtradeWebserver, owner metav1.OwnerReference) *networkingv1.Ingress {
	spec := ws.Spec.Ingress
	meta := objectMeta(ws.Name, ws.Namespace, webserverLabels(ws.Name), owner)
	meta.Annotations = spec.Annotations
	ingress := &networkingv1.Ingress{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Ingress",
			APIVersion: "networking.k8s.io/v1",
		},
		ObjectMeta: meta,
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{
				{
					Host: spec.Host,
					IngressRuleValue: networkingv1.IngressRuleValue{
						HTTP: &networkingv1.HTTPIngressRuleValue{
							Paths: []networkingv1.HTTPIngressPath{
								{
									Path:     "/",
									PathType: ptr.To(networkingv1.PathTypePrefix),
									Backend: networkingv1.IngressBackend{
										Service: &networkingv1.IngressServiceBackend{
											Name: ws.Name,
											Port: networkingv1.ServiceBackendPort{Number: webserverPort},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}
	if spec.TLSEnabled() {
		secretName := spec.TLSSecretName
		if secretName == "" {
			secretName = ws.Name + "-tls"
		}
		ingress.Spec.TLS = []networkingv1.IngressTLS{
			{Hosts: []string{spec.Host}, SecretName: secretName},
		}
	}
	return ingress
}

// WebserverURL is the address FreqUI is reachable at
func WebserverURL(ws *freqv1.FreqtradeWebserver) string {
	protocol := "http"
	if ws.Spec.Ingress.TLSEnabled() {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s", protocol, ws.Spec.Ingress.Host)
}
