package route

import (
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// addOwnerReference links a generated object to its source Ingress so that
// deleting the Ingress garbage-collects the routes. A reference for the same
// owner UID is added at most once.
func addOwnerReference(meta *metav1.ObjectMeta, ingress *networkingv1.Ingress) {
	for _, owner := range meta.OwnerReferences {
		if owner.UID == ingress.UID {
			return
		}
	}

	blockOwnerDeletion := false

	meta.OwnerReferences = append(meta.OwnerReferences, metav1.OwnerReference{
		APIVersion:         networkingv1.SchemeGroupVersion.String(),
		Kind:               "Ingress",
		Name:               ingress.Name,
		UID:                ingress.UID,
		BlockOwnerDeletion: &blockOwnerDeletion,
	})
}
