package transport

// LoginPath is the application entry point a Navigator is asked to show
// after the credential token was rejected.
const LoginPath = "/login"

// Navigator is notified when the surrounding application should return to
// its login entry point.
type Navigator interface {
	NavigateToLogin()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

// NavigateToLogin ...
func (f NavigatorFunc) NavigateToLogin() {
	f()
}

type nopNavigator struct{}

func (nopNavigator) NavigateToLogin() {}

// NopNavigator ignores navigation signals.
func NopNavigator() Navigator {
	return nopNavigator{}
}
