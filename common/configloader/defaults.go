// common/configloader/defaults.go
package configloader

// Defaults — плоская карта "section.key" → значение по умолчанию.
// Каждый ключ регистрируется во viper, поэтому его можно переопределить через ENV.
type Defaults map[string]interface{}

// Merge возвращает новую карту: значения из other перекрывают d.
func (d Defaults) Merge(other Defaults) Defaults {
	out := make(Defaults, len(d)+len(other))
	for k, v := range d {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// WithPrefix возвращает копию с ключами вида prefix.key.
func (d Defaults) WithPrefix(prefix string) Defaults {
	out := make(Defaults, len(d))
	for k, v := range d {
		out[prefix+"."+k] = v
	}
	return out
}
