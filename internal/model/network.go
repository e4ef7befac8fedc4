package model

import "strings"

// networkNames сопоставляет chain id и внутренние имена сетей с отображаемыми
var networkNames = map[string]string{
	"1":     "Ethereum",
	"10":    "Optimism",
	"56":    "BNB Chain",
	"137":   "Polygon",
	"8453":  "Base",
	"42161": "Arbitrum",
	"23434": "Starknet",
}

// networkFamilies - имя сети для валидатора адресов
var networkFamilies = map[string]string{
	"1":     "ethereum",
	"10":    "optimism",
	"56":    "bsc",
	"137":   "polygon",
	"8453":  "base",
	"42161": "arbitrum",
	"23434": "starknet",
}

// NetworkName возвращает человекочитаемое имя сети
func NetworkName(network string) string {
	if name, ok := networkNames[network]; ok {
		return name
	}
	if network == "" {
		return ""
	}
	return strings.ToUpper(network[:1]) + strings.ToLower(network[1:])
}

// NetworkKey приводит chain id к имени сети, понятному валидатору
func NetworkKey(network string) string {
	if key, ok := networkFamilies[network]; ok {
		return key
	}
	return strings.ToLower(strings.TrimSpace(network))
}
