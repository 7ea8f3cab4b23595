// Package vector groups the SimilarityIndex backends: memory, chromem and firestore.
package vector
