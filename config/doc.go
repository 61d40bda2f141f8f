// Package config 提供 craftmeet 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → .env 文件 → 环境变量 的顺序叠加，
// 环境变量名与部署文档一致（AI_PROVIDER、MEMORY_STORAGE_TYPE、
// VOTING_THRESHOLD、{ROLE}_COUNT、REDIS_HOST 等）。
package config
