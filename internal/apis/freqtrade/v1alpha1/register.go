package v1alpha1

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// GroupName is the API group of all freqtrade resources
const GroupName = "trading.freqtrade.io"

// SchemeGroupVersion is the group version used for our resources
var SchemeGroupVersion = schema.GroupVersion{Group: GroupName, Version: "v1alpha1"}

// Resources served by the CRDs
var (
	FreqtradeBotResource       = SchemeGroupVersion.WithResource("freqtradebots")
	FreqtradeWebserverResource = SchemeGroupVersion.WithResource("freqtradewebservers")
)

// Kinds, used for owner references
var (
	FreqtradeBotKind       = SchemeGroupVersion.WithKind("FreqtradeBot")
	FreqtradeWebserverKind = SchemeGroupVersion.WithKind("FreqtradeWebserver")
)

// BotFromUnstructured converts an object delivered by the dynamic informer
func BotFromUnstructured(u *unstructured.Unstructured) (*FreqtradeBot, error) {
	bot := &FreqtradeBot{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, bot); err != nil {
		return nil, fmt.Errorf("could not convert %s/%s to FreqtradeBot: %w", u.GetNamespace(), u.GetName(), err)
	}
	return bot, nil
}

// WebserverFromUnstructured converts an object delivered by the dynamic informer
func WebserverFromUnstructured(u *unstructured.Unstructured) (*FreqtradeWebserver, error) {
	ws := &FreqtradeWebserver{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, ws); err != nil {
		return nil, fmt.Errorf("could not convert %s/%s to FreqtradeWebserver: %w", u.GetNamespace(), u.GetName(), err)
	}
	return ws, nil
}
