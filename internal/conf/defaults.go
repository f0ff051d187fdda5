package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for the configuration parameters.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("server.url", "")
	viper.SetDefault("server.timeout", 45)

	viper.SetDefault("auth.userid", 0)
	viper.SetDefault("auth.token", "")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "scanpest.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "scanpest")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "scanpest")

	viper.SetDefault("media.path", "media")

	viper.SetDefault("sync.onstart", false)
	viper.SetDefault("sync.language", "en")
}
