package server

const (
	RouteGoogleAuthURL  = "GET /api/v1/auth/google/url"
	RouteGoogleCallback = "POST /api/v1/auth/google/callback"
	RouteRefresh        = "POST /api/v1/auth/refresh"
	RouteMe             = "GET /api/v1/auth/me"
	RouteLogout         = "POST /api/v1/auth/logout"
	RouteRegister       = "POST /api/v1/auth/register"
	RouteLogin          = "POST /api/v1/auth/login"
	RouteHealth         = "GET /health"
)

func (s *Server) initRoutes() {
	api := s.APIMiddleware()

	s.RegisterRouteFunc(RouteGoogleAuthURL, ChainMiddleware(s.GoogleAuthURLHandler(), api...))
	s.RegisterRouteFunc(RouteGoogleCallback, ChainMiddleware(s.GoogleCallbackHandler(), api...))
	s.RegisterRouteFunc(RouteRefresh, ChainMiddleware(s.RefreshHandler(), api...))
	s.RegisterRouteFunc(RouteMe, ChainMiddleware(s.MeHandler(), append(api, s.RequireAuth())...))
	s.RegisterRouteFunc(RouteLogout, ChainMiddleware(s.LogoutHandler(), append(api, s.RequireAuth())...))
	s.RegisterRouteFunc(RouteRegister, ChainMiddleware(s.RegisterHandler(), api...))
	s.RegisterRouteFunc(RouteLogin, ChainMiddleware(s.LoginHandler(), api...))
	s.RegisterRouteFunc(RouteHealth, s.HealthHandler())
}
