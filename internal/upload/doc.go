// Package upload sends tabular files to the agent's extraction endpoint and
// caches successful extractions by content digest.
package upload
