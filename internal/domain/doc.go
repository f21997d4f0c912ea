// Package domain contains the core business entities and types for MLyard.
//
// This package defines:
//   - Entity types (Workspace, Experiment, Run, ModelVersion, Endpoint, etc.)
//   - Value objects and enums
//   - Input/output types for service operations
//   - Domain-level validation rules
//
// Domain types are persistence-agnostic and represent the core
// business concepts independent of how they are stored or transmitted.
//
// # Key Entities
//
//   - Workspace: The tenancy root, everything else hangs off one
//   - Experiment: A named grouping of training runs
//   - Run: A single training run with params, tags, metrics and artifacts
//   - RegisteredModel / ModelVersion: The model registry
//   - ComputeTarget / TrainingJob: Remote training submission
//   - Endpoint: A deployed model version serving predictions over HTTP
package domain
