// Package phi is the field-level encryption core of the clinic back office.
//
// Patient identity, contact and insurance details are sealed at rest as
// authenticated-encryption envelopes (Codec) while remaining searchable
// through keyed blind-index tokens (search package) derived from the same
// normalised plaintext. The FieldBinder gives repositories a plaintext view
// of tagged record structs, the boundary package decrypts whole document
// trees on their way out of the process, and the access package decides
// which principals may read a patient at all.
//
// Threat model: an adversary with read access to the persisted store
// (backups, snapshots, operator console). The core does not defend against
// an attacker who already controls the application process.
//
// Key material is supplied by the deploying environment through a KeySource;
// implementations for environment variables, HashiCorp Vault and AWS Secrets
// Manager live under providers/.
package phi
