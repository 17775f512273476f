package models

// SecurityFactors holds the five sub-scores, each in [0,100].
type SecurityFactors struct {
	PasswordSecurity int `json:"password_security"`
	DeviceSecurity   int `json:"device_security"`
	NetworkSecurity  int `json:"network_security"`
	AppSecurity      int `json:"app_security"`
	FamilySafety     int `json:"family_safety"`
}

// FactorName identifies one of the five sub-scores.
type FactorName string

const (
	FactorPassword FactorName = "password_security"
	FactorDevice   FactorName = "device_security"
	FactorNetwork  FactorName = "network_security"
	FactorApp      FactorName = "app_security"
	FactorFamily   FactorName = "family_safety"
)

// FactorNames lists the factors in their canonical order.
var FactorNames = []FactorName{FactorPassword, FactorDevice, FactorNetwork, FactorApp, FactorFamily}

func (f SecurityFactors) Get(name FactorName) int {
	switch name {
	case FactorPassword:
		return f.PasswordSecurity
	case FactorDevice:
		return f.DeviceSecurity
	case FactorNetwork:
		return f.NetworkSecurity
	case FactorApp:
		return f.AppSecurity
	case FactorFamily:
		return f.FamilySafety
	}
	return 0
}

func (f *SecurityFactors) Set(name FactorName, value int) {
	switch name {
	case FactorPassword:
		f.PasswordSecurity = value
	case FactorDevice:
		f.DeviceSecurity = value
	case FactorNetwork:
		f.NetworkSecurity = value
	case FactorApp:
		f.AppSecurity = value
	case FactorFamily:
		f.FamilySafety = value
	}
}

// Clamped returns a copy with every factor forced into [0,100].
func (f SecurityFactors) Clamped() SecurityFactors {
	out := f
	for _, name := range FactorNames {
		v := out.Get(name)
		if v < 0 {
			v = 0
		} else if v > 100 {
			v = 100
		}
		out.Set(name, v)
	}
	return out
}
