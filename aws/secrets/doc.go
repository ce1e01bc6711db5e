// Package secrets escrows payload obfuscation keys in AWS Secrets Manager.
//
// A run that obfuscates its payloads generates a fresh key; without the key
// the uploaded objects cannot be restored. Escrow stores the key under a
// caller-chosen secret name, creating the secret on first use and adding a
// new version afterwards.
//
// # IAM Permissions
//
//   - secretsmanager:CreateSecret
//   - secretsmanager:PutSecretValue
//   - kms:GenerateDataKey when the secret uses a customer-managed KMS key
//
// Secret values are never logged; only secret names and outcomes are.
package secrets
